package vkdev

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/vulkan"
)

func (d *Device) CreateFence(signaled bool) (vulkan.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := check("create fence", vk.CreateFence(d.device, &info, nil, &f)); err != nil {
		return vulkan.NullFence, err
	}
	return vulkan.Fence(d.fences.put(f)), nil
}

func (d *Device) DestroyFence(h vulkan.Fence) {
	if f, ok := d.fences.take(uint64(h)); ok {
		vk.DestroyFence(d.device, f, nil)
	}
}

func (d *Device) fenceList(hs []vulkan.Fence) ([]vk.Fence, error) {
	out := make([]vk.Fence, len(hs))
	for i, h := range hs {
		f, ok := d.fences.get(uint64(h))
		if !ok {
			return nil, errors.Errorf("unknown fence %d", h)
		}
		out[i] = f
	}
	return out, nil
}

func (d *Device) ResetFences(hs []vulkan.Fence) error {
	fences, err := d.fenceList(hs)
	if err != nil {
		return err
	}
	return check("reset fences", vk.ResetFences(d.device, uint32(len(fences)), fences))
}

func (d *Device) WaitForFences(hs []vulkan.Fence, timeout time.Duration) error {
	fences, err := d.fenceList(hs)
	if err != nil {
		return err
	}
	return check("wait for fences", vk.WaitForFences(d.device, uint32(len(fences)), fences, vk.True, nanos(timeout)))
}

func (d *Device) FenceStatus(h vulkan.Fence) (bool, error) {
	f, ok := d.fences.get(uint64(h))
	if !ok {
		return false, errors.Errorf("unknown fence %d", h)
	}
	switch res := vk.GetFenceStatus(d.device, f); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("get fence status", res)
	}
}

func (d *Device) CreateSemaphore() (vulkan.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := check("create semaphore", vk.CreateSemaphore(d.device, &info, nil, &s)); err != nil {
		return vulkan.NullSemaphore, err
	}
	return vulkan.Semaphore(d.semaphores.put(s)), nil
}

func (d *Device) DestroySemaphore(h vulkan.Semaphore) {
	if s, ok := d.semaphores.take(uint64(h)); ok {
		vk.DestroySemaphore(d.device, s, nil)
	}
}

func (d *Device) semaphoreList(hs []vulkan.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(hs))
	for i, h := range hs {
		s, ok := d.semaphores.get(uint64(h))
		if !ok {
			return nil, errors.Errorf("unknown semaphore %d", h)
		}
		out[i] = s
	}
	return out, nil
}

// nanos converts a timeout for the native API, where MaxUint64 waits
// forever.
func nanos(timeout time.Duration) uint64 {
	if timeout == vulkan.Infinite || timeout < 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
