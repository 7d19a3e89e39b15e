package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDisplayStatus(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		status      QuestionStatus
		closedDate  *time.Time
		hasAnyReply bool
		want        DisplayStatus
	}{
		{"pending maps directly", StatusPending, nil, false, DisplayPending},
		{"answered maps directly", StatusAnswered, nil, true, DisplayAnswered},
		{"closed with date", StatusClosed, &now, true, DisplayClosed},
		{"closed with date but no replies", StatusClosed, &now, false, DisplayClosed},
		{"closed without date falls back to replies", StatusClosed, nil, true, DisplayAnswered},
		{"closed without date and no replies", StatusClosed, nil, false, DisplayPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &Question{Status: tt.status, ClosedDate: tt.closedDate}
			assert.Equal(t, tt.want, DeriveDisplayStatus(q, tt.hasAnyReply))
		})
	}
}
