package core

import (
	"context"
	"fmt"

	"vialcore/pkg/domain"
)

// NewContainerGeometryRule returns the in-transaction rule validating grid
// geometry: positive dimensions, every slot inside its container's bounds,
// and no duplicate coordinates within a container.
func NewContainerGeometryRule() domain.Rule {
	return containerGeometryRule{}
}

type containerGeometryRule struct{}

func (containerGeometryRule) Name() string { return "container_geometry" }

func (containerGeometryRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, change := range changes {
		if change.Entity != domain.EntityContainer || change.Action != domain.ActionUpdate {
			continue
		}
		before, okBefore := decodeChangePayload[domain.StorageContainer](change.Before)
		after, okAfter := decodeChangePayload[domain.StorageContainer](change.After)
		if !okBefore || !okAfter {
			continue
		}
		if after.Rows < before.Rows || after.Cols < before.Cols {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "container_geometry",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("container %s shrank from %dx%d to %dx%d", after.ID, before.Rows, before.Cols, after.Rows, after.Cols),
				Entity:   domain.EntityContainer,
				EntityID: after.ID,
			})
		}
	}

	for _, container := range view.ListContainers() {
		if container.Rows < 1 || container.Cols < 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "container_geometry",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("container %s has invalid dimensions %dx%d", container.ID, container.Rows, container.Cols),
				Entity:   domain.EntityContainer,
				EntityID: container.ID,
			})
		}
	}

	type coord struct {
		container string
		row, col  int
	}
	seen := make(map[coord]string)
	for _, slot := range view.ListSlots() {
		container, ok := view.FindContainer(slot.ContainerID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "container_geometry",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slot %s references missing container %s", slot.ID, slot.ContainerID),
				Entity:   domain.EntitySlot,
				EntityID: slot.ID,
			})
			continue
		}
		if slot.Row < 0 || slot.Row >= container.Rows || slot.Col < 0 || slot.Col >= container.Cols {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "container_geometry",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slot %s at (%d,%d) outside container %s bounds %dx%d", slot.ID, slot.Row, slot.Col, container.ID, container.Rows, container.Cols),
				Entity:   domain.EntitySlot,
				EntityID: slot.ID,
			})
		}
		key := coord{container: slot.ContainerID, row: slot.Row, col: slot.Col}
		if prev, dup := seen[key]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "container_geometry",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slots %s and %s share coordinate (%d,%d) in container %s", prev, slot.ID, slot.Row, slot.Col, slot.ContainerID),
				Entity:   domain.EntitySlot,
				EntityID: slot.ID,
			})
			continue
		}
		seen[key] = slot.ID
	}

	return res, nil
}
