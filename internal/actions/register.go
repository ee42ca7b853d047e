package actions

import (
	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/registry"
)

// RegisterDefaults installs the built-in action set into a registry.
func RegisterDefaults(reg *registry.Registry) error {
	for _, action := range []ports.Action{
		ResolveEntities{},
		GetPOIFacts{},
		BuildTimeMatrix{},
		OptimizeDayVRPTW{},
		RepairCrossDay{},
		ValidateFeasibility{},
		NewBrowse(),
	} {
		if err := reg.Register(action); err != nil {
			return err
		}
	}
	return nil
}
