package metric

import (
	"github.com/t77yq/careops-alerts/internal/model"
)

// Source builds fetchers for catalogue metrics
type Source interface {
	Fetcher(desc model.MetricDescriptor, field string) Fetcher
}

// Fetcher implements Source by reading field from the category statistics
func (p *HTTPProvider) Fetcher(desc model.MetricDescriptor, field string) Fetcher {
	return p.Field(desc.Category, field)
}

// Fetcher implements Source by keying values on the metric id
func (p *StaticProvider) Fetcher(desc model.MetricDescriptor, _ string) Fetcher {
	return p.Value(desc.ID)
}

type catalogEntry struct {
	desc  model.MetricDescriptor
	field string
}

var catalog = []catalogEntry{
	{
		desc: model.MetricDescriptor{
			ID:          "bed_occupancy_rate",
			Name:        "Bed Occupancy Rate",
			Description: "Share of staffed beds currently occupied",
			Category:    model.MetricCategoryBeds,
			DataType:    model.MetricDataTypePercentage,
			Unit:        "%",
		},
		field: "occupancyRate",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "icu_available_beds",
			Name:        "Available ICU Beds",
			Description: "Number of intensive care beds free for admission",
			Category:    model.MetricCategoryBeds,
			DataType:    model.MetricDataTypeNumber,
			Unit:        "beds",
		},
		field: "icu.available",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "billing_overdue_amount",
			Name:        "Overdue Billing Amount",
			Description: "Total outstanding amount on invoices past their due date",
			Category:    model.MetricCategoryBilling,
			DataType:    model.MetricDataTypeNumber,
			Unit:        "USD",
		},
		field: "overdueAmount",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "billing_overdue_invoices",
			Name:        "Overdue Invoices",
			Description: "Number of invoices past their due date",
			Category:    model.MetricCategoryBilling,
			DataType:    model.MetricDataTypeNumber,
			Unit:        "invoices",
		},
		field: "overdueCount",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "appointment_cancellation_rate",
			Name:        "Appointment Cancellation Rate",
			Description: "Share of today's appointments cancelled or missed",
			Category:    model.MetricCategoryAppointments,
			DataType:    model.MetricDataTypePercentage,
			Unit:        "%",
		},
		field: "cancellationRate",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "emergency_wait_time",
			Name:        "Emergency Wait Time",
			Description: "Average wait before first assessment in the emergency department",
			Category:    model.MetricCategoryEmergency,
			DataType:    model.MetricDataTypeNumber,
			Unit:        "minutes",
		},
		field: "averageWaitMinutes",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "emergency_diversion_active",
			Name:        "Emergency Diversion",
			Description: "Whether ambulances are being diverted to other facilities",
			Category:    model.MetricCategoryEmergency,
			DataType:    model.MetricDataTypeBoolean,
		},
		field: "diversionActive",
	},
	{
		desc: model.MetricDescriptor{
			ID:          "patients_admitted_today",
			Name:        "Patients Admitted Today",
			Description: "Number of inpatient admissions since midnight",
			Category:    model.MetricCategoryPatients,
			DataType:    model.MetricDataTypeNumber,
			Unit:        "patients",
		},
		field: "admittedToday",
	},
}

// DefaultMetrics returns the hospital metric catalogue backed by src
func DefaultMetrics(src Source) []Metric {
	metrics := make([]Metric, 0, len(catalog))
	for _, entry := range catalog {
		metrics = append(metrics, Metric{
			MetricDescriptor: entry.desc,
			Fetch:            src.Fetcher(entry.desc, entry.field),
		})
	}
	return metrics
}
