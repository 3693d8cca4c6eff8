// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package streams

import "fmt"

// UserActivity is what the person carrying the sensors is doing.
type UserActivity string

const (
	Confirm     UserActivity = "Confirm"
	IdleIndoor  UserActivity = "IDLE_INDOOR"
	IdleOutdoor UserActivity = "IDLE_OUTDOOR"
	Walking     UserActivity = "WALKING"
	Bus         UserActivity = "BUS"
	Train       UserActivity = "TRAIN"
	Car         UserActivity = "CAR"
	Jogging     UserActivity = "JOGGING"
	Other       UserActivity = "OTHER"
	Incorrect   UserActivity = "INCORRECT"
)

// Activities lists every label. New labels only need to be added here.
var Activities = []UserActivity{
	Confirm, IdleIndoor, IdleOutdoor, Walking, Bus, Train, Car, Jogging, Other, Incorrect,
}

// Valid reports whether a is a known label.
func (a UserActivity) Valid() bool {
	for _, known := range Activities {
		if a == known {
			return true
		}
	}
	return false
}

// ParseActivity returns the label named s.
func ParseActivity(s string) (UserActivity, error) {
	a := UserActivity(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown activity %q", s)
	}
	return a, nil
}

// Label is the payload of an activity stream reading.
type Label struct {
	Activity UserActivity `json:"activity"`
}
