package notify

import (
	"net/url"
	"testing"

	"github.com/hanfang-health/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigationTarget(t *testing.T) {
	tests := []struct {
		name     string
		data     ClickData
		wantPath string
		wantQry  map[string]string
	}{
		{
			name:     "medication",
			data:     ClickData{ID: "n1", Category: models.CategoryMedication},
			wantPath: "/dashboard/medications",
			wantQry:  map[string]string{"notification": "n1"},
		},
		{
			name: "appointment carries appointment id",
			data: ClickData{
				ID:       "n2",
				Category: models.CategoryAppointment,
				Data:     map[string]string{"appointment_id": "apt-9"},
			},
			wantPath: "/dashboard/appointments",
			wantQry:  map[string]string{"notification": "n2", "appointment_id": "apt-9"},
		},
		{
			name: "report carries report id",
			data: ClickData{
				ID:       "n3",
				Category: models.CategoryReport,
				Data:     map[string]string{"report_id": "r-1"},
			},
			wantPath: "/dashboard/reports",
			wantQry:  map[string]string{"notification": "n3", "report_id": "r-1"},
		},
		{
			name:     "health tip",
			data:     ClickData{ID: "n4", Category: models.CategoryHealthTip},
			wantPath: "/dashboard/tips",
			wantQry:  map[string]string{"notification": "n4"},
		},
		{
			name: "community carries post id",
			data: ClickData{
				ID:       "n5",
				Category: models.CategoryCommunity,
				Data:     map[string]string{"post_id": "p-3"},
			},
			wantPath: "/community",
			wantQry:  map[string]string{"notification": "n5", "post_id": "p-3"},
		},
		{
			name:     "unknown category falls back to dashboard",
			data:     ClickData{ID: "n6", Category: "mystery"},
			wantPath: "/dashboard",
			wantQry:  map[string]string{"notification": "n6"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NavigationTarget(tt.data)

			parsed, err := url.Parse(target)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, parsed.Path)
			for key, want := range tt.wantQry {
				assert.Equal(t, want, parsed.Query().Get(key))
			}
		})
	}
}
