package notify

import (
	"net/url"

	"github.com/hanfang-health/backend/models"
)

// NavigationTarget builds the client navigation URL for a clicked
// notification: a per-category path plus query parameters carried in the
// click payload.
func NavigationTarget(data ClickData) string {
	query := url.Values{}
	query.Set("notification", data.ID)

	var path string
	switch data.Category {
	case models.CategoryMedication:
		path = "/dashboard/medications"
	case models.CategoryAppointment:
		path = "/dashboard/appointments"
		if id, ok := data.Data["appointment_id"]; ok {
			query.Set("appointment_id", id)
		}
	case models.CategoryReport:
		path = "/dashboard/reports"
		if id, ok := data.Data["report_id"]; ok {
			query.Set("report_id", id)
		}
	case models.CategoryHealthTip:
		path = "/dashboard/tips"
	case models.CategoryCommunity:
		path = "/community"
		if id, ok := data.Data["post_id"]; ok {
			query.Set("post_id", id)
		}
	default:
		path = "/dashboard"
	}

	return path + "?" + query.Encode()
}
