package notification

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func Test_successRate(t *testing.T) {
	tests := []struct {
		read, total, want int
	}{
		{0, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{10, 10, 100},
	}
	for _, tt := range tests {
		if got := successRate(tt.read, tt.total); got != tt.want {
			t.Errorf("successRate(%d, %d) = %d; want %d", tt.read, tt.total, got, tt.want)
		}
	}
}

func TestNewCampaignSummary(t *testing.T) {
	at := time.Now().UTC()
	sum := NewCampaignSummary(null.IntFrom(7), "Hostel Survey", "Form Reminder", 4, 3, at)
	if sum.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d; want 1", sum.UnreadCount)
	}
	if sum.SuccessRate != 75 {
		t.Errorf("SuccessRate = %d; want 75", sum.SuccessRate)
	}
	if !sum.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v; want %v", sum.CreatedAt, at)
	}
}
