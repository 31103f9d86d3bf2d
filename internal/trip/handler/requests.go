package handler

import (
	"strings"
	"time"

	"tripkey/internal/trip/service"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/validation"
)

// HTTP Request DTOs. These are converted to service commands before processing.

type CreateTripRequest struct {
	Name        string `json:"name" validate:"required,notblank,max=80"`
	StartDate   string `json:"startDate" validate:"required,civildate"`
	EndDate     string `json:"endDate" validate:"required,civildate"`
	Timezone    string `json:"timezone" validate:"required,timezone"`
	DisplayName string `json:"displayName" validate:"required,notblank,max=80"`
}

func (r *CreateTripRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.EndDate = strings.TrimSpace(r.EndDate)
	r.Timezone = strings.TrimSpace(r.Timezone)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
}

func (r *CreateTripRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	// Both dates parsed above; ordering is the only cross-field rule.
	start, _ := time.Parse(validation.DateLayout, r.StartDate)
	end, _ := time.Parse(validation.DateLayout, r.EndDate)
	if end.Before(start) {
		return dErrors.New(dErrors.CodeValidation, "endDate must not be before startDate")
	}
	return nil
}

func (r *CreateTripRequest) toCommand() service.CreateTripCommand {
	start, _ := time.Parse(validation.DateLayout, r.StartDate)
	end, _ := time.Parse(validation.DateLayout, r.EndDate)
	return service.CreateTripCommand{
		Name:        r.Name,
		StartDate:   start,
		EndDate:     end,
		Timezone:    r.Timezone,
		DisplayName: r.DisplayName,
	}
}

type JoinTripRequest struct {
	PIN         string `json:"pin" validate:"required,pin"`
	TripID      string `json:"tripId,omitempty" validate:"omitempty,uuid"`
	DisplayName string `json:"displayName" validate:"required,notblank,max=80"`
	IsChild     bool   `json:"isChild,omitempty"`
}

// Normalize trims names and ids. The PIN is left as sent so that padded
// input is rejected rather than silently repaired.
func (r *JoinTripRequest) Normalize() {
	if r == nil {
		return
	}
	r.TripID = strings.TrimSpace(r.TripID)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
}

func (r *JoinTripRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

func (r *JoinTripRequest) toCommand(userAgent string) (service.JoinCommand, error) {
	cmd := service.JoinCommand{
		PIN:         r.PIN,
		DisplayName: r.DisplayName,
		IsChild:     r.IsChild,
		UserAgent:   userAgent,
	}
	if r.TripID != "" {
		tripID, err := id.ParseTripID(r.TripID)
		if err != nil {
			return cmd, err
		}
		cmd.TripID = &tripID
	}
	return cmd, nil
}
