package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/registry"
	"github.com/zatekoja/bedflow/pkg/config"
)

// WardService handles ward layout and bulk capacity reconfiguration
type WardService struct {
	registry *registry.Registry
	notifier *Notifier
}

// NewWardService creates a new ward service
func NewWardService(reg *registry.Registry, notifier *Notifier) *WardService {
	return &WardService{
		registry: reg,
		notifier: notifier,
	}
}

// WardView is a ward together with its live occupancy
type WardView struct {
	*entities.Ward
	Stats entities.OccupancyStats `json:"stats"`
}

// ListWards returns every ward with its current counts
func (s *WardService) ListWards(ctx context.Context) []WardView {
	var views []WardView
	s.registry.View(func(wards []*entities.Ward, beds []*entities.Bed) {
		stats := make(map[string]*entities.OccupancyStats, len(wards))
		for _, ward := range wards {
			stats[ward.ID] = &entities.OccupancyStats{}
		}
		for _, bed := range beds {
			if st, ok := stats[bed.WardID]; ok {
				st.Count(bed.Status)
			}
		}
		views = make([]WardView, 0, len(wards))
		for _, ward := range wards {
			st := stats[ward.ID]
			st.Finalize()
			views = append(views, WardView{Ward: ward, Stats: *st})
		}
	})
	return views
}

// ReconfigureWard replaces a ward's membership and capacity in one bulk operation
func (s *WardService) ReconfigureWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) (*entities.Ward, error) {
	updated, err := s.registry.ReconfigureWard(ctx, ward, beds)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, entities.NewBedEvent(entities.BedEventTypeWardReconfigured, updated.ID, "", "", map[string]interface{}{
		"capacity": updated.Capacity,
	}))
	return updated, nil
}

// ProvisionLayout creates the wards of a layout file that the registry does not know yet.
// Existing wards are left untouched so restarts never reset live state.
func (s *WardService) ProvisionLayout(ctx context.Context, layout *config.HospitalLayout) (int, error) {
	created := 0
	for _, wl := range layout.Wards {
		if _, err := s.registry.Ward(wl.ID); err == nil {
			continue
		}

		beds := make([]*entities.Bed, 0, len(wl.Beds))
		for _, bl := range wl.Beds {
			beds = append(beds, &entities.Bed{
				ID:           bl.ID,
				WardID:       wl.ID,
				Label:        bl.Label,
				EquipmentTag: entities.StringPtr(bl.Equipment),
			})
		}
		ward := &entities.Ward{
			ID:       wl.ID,
			Name:     wl.Name,
			WardType: entities.StringPtr(wl.WardType),
			Capacity: len(beds),
		}
		if _, err := s.registry.ReconfigureWard(ctx, ward, beds); err != nil {
			return created, fmt.Errorf("failed to provision ward %s: %w", wl.ID, err)
		}
		created++
	}

	if created > 0 {
		log.Info().Int("wards", created).Msg("ward layout provisioned")
	}
	return created, nil
}
