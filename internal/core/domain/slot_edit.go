package domain

import "fmt"

type SlotEditKind string

const (
	SlotEditKindAdd    SlotEditKind = "add"
	SlotEditKindEdit   SlotEditKind = "edit"
	SlotEditKindDelete SlotEditKind = "delete"
)

// SlotEdit запрос на изменение от интерфейса.
// Для add и delete используется Slot, для edit пара OldSlot -> NewSlot.
type SlotEdit struct {
	Kind    SlotEditKind `json:"kind"`
	Day     WeekDay      `json:"day"`
	Slot    *TimeSlot    `json:"slot,omitempty"`
	OldSlot *TimeSlot    `json:"oldSlot,omitempty"`
	NewSlot *TimeSlot    `json:"newSlot,omitempty"`
}

// Apply превращает изменение в полный список слотов дня, исходный слайс не меняется
func (e SlotEdit) Apply(current []TimeSlot) ([]TimeSlot, error) {
	switch e.Kind {
	case SlotEditKindAdd:
		if e.Slot == nil {
			return nil, fmt.Errorf("%w: add requires slot", ErrInvalidSlot)
		}
		if err := validateEditSlot(*e.Slot); err != nil {
			return nil, err
		}
		return append(CloneSlots(current), *e.Slot), nil

	case SlotEditKindEdit:
		if e.OldSlot == nil || e.NewSlot == nil {
			return nil, fmt.Errorf("%w: edit requires oldSlot and newSlot", ErrInvalidSlot)
		}
		if err := validateEditSlot(*e.NewSlot); err != nil {
			return nil, err
		}
		result := CloneSlots(current)
		for i, slot := range result {
			if slot == *e.OldSlot {
				result[i] = *e.NewSlot
				return result, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, e.OldSlot)

	case SlotEditKindDelete:
		if e.Slot == nil {
			return nil, fmt.Errorf("%w: delete requires slot", ErrInvalidSlot)
		}
		result := make([]TimeSlot, 0, len(current))
		found := false
		for _, slot := range current {
			if slot == *e.Slot {
				found = true
				continue
			}
			result = append(result, slot)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, e.Slot)
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: unknown edit kind %q", ErrInvalidSlot, e.Kind)
}

// Слот нулевой длины от интерфейса не несет смысла (диалог создает 00:00-00:00 по умолчанию)
func validateEditSlot(slot TimeSlot) error {
	if !slot.Start.IsValid() || !slot.End.IsValid() {
		return fmt.Errorf("%w: %s out of range", ErrInvalidSlot, slot)
	}
	if slot.IsZeroLength() {
		return fmt.Errorf("%w: %s has zero length", ErrInvalidSlot, slot)
	}
	return nil
}
