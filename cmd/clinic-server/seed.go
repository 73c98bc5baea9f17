package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinic/booking/internal/domain/identity"
	"github.com/clinic/booking/internal/domain/scheduling"
	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
)

type seedAccount struct {
	input     identity.RegisterInput
	schedules []scheduling.ScheduleInput
}

// weekdays returns the same window for Monday through Friday.
func weekdays(start, end string) []scheduling.ScheduleInput {
	out := make([]scheduling.ScheduleInput, 0, 5)
	for day := 1; day <= 5; day++ {
		out = append(out, scheduling.ScheduleInput{DayOfWeek: day, StartTime: start, EndTime: end})
	}
	return out
}

func seedAccounts(password string) []seedAccount {
	clinicoGeral := append(weekdays("08:00", "12:00"), weekdays("14:00", "18:00")...)
	cardiologia := append(weekdays("09:00", "13:00"),
		scheduling.ScheduleInput{DayOfWeek: 6, StartTime: "08:00", EndTime: "12:00"})

	return []seedAccount{
		{
			input: identity.RegisterInput{
				Name:          "Dra. Ana Souza",
				Email:         "ana.souza@clinica.local",
				Password:      password,
				Role:          auth.RoleDoctor,
				Specialty:     "Clínico Geral",
				LicenseNumber: "CRM-SP-123456",
				Phone:         "(11) 3333-1001",
			},
			schedules: clinicoGeral,
		},
		{
			input: identity.RegisterInput{
				Name:          "Dr. Bruno Lima",
				Email:         "bruno.lima@clinica.local",
				Password:      password,
				Role:          auth.RoleDoctor,
				Specialty:     "Cardiologia",
				LicenseNumber: "CRM-SP-654321",
				Phone:         "(11) 3333-1002",
			},
			schedules: cardiologia,
		},
		{
			input: identity.RegisterInput{
				Name:     "Carla Mendes",
				Email:    "recepcao@clinica.local",
				Password: password,
				Role:     auth.RoleReceptionist,
			},
		},
	}
}

// seed is idempotent: existing accounts are reused and schedule windows that
// are already in place are skipped.
func seed(ctx context.Context, a *app, password string) error {
	for _, acct := range seedAccounts(password) {
		user, err := ensureUser(ctx, a.identity, acct.input)
		if err != nil {
			return fmt.Errorf("seed %s: %w", acct.input.Email, err)
		}
		fmt.Printf("%-14s %-28s %s\n", user.Role, user.Email, user.ID)

		p := user.Principal()
		created := 0
		for _, in := range acct.schedules {
			_, err := a.scheduling.CreateSchedule(ctx, p, in)
			if errors.Is(err, apperr.ErrScheduleConflict) {
				continue
			}
			if err != nil {
				return fmt.Errorf("seed schedule for %s: %w", acct.input.Email, err)
			}
			created++
		}
		if len(acct.schedules) > 0 {
			fmt.Printf("  %d of %d schedule window(s) created\n", created, len(acct.schedules))
		}
	}
	return nil
}

func ensureUser(ctx context.Context, svc *identity.Service, in identity.RegisterInput) (*identity.User, error) {
	session, err := svc.Login(ctx, in.Email, in.Password)
	if err == nil {
		return session.User, nil
	}
	if !errors.Is(err, apperr.ErrUnauthorized) {
		return nil, err
	}

	if _, err := svc.Register(ctx, in); err != nil {
		return nil, err
	}
	session, err = svc.Login(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	return session.User, nil
}
