package model

// MetricCategory groups metrics by the hospital area they describe
type MetricCategory string

const (
	MetricCategoryBeds         MetricCategory = "beds"
	MetricCategoryBilling      MetricCategory = "billing"
	MetricCategoryAppointments MetricCategory = "appointments"
	MetricCategoryPatients     MetricCategory = "patients"
	MetricCategoryEmergency    MetricCategory = "emergency"
	MetricCategorySystem       MetricCategory = "system"
)

// MetricDataType describes the shape of a metric value
type MetricDataType string

const (
	MetricDataTypeNumber     MetricDataType = "number"
	MetricDataTypePercentage MetricDataType = "percentage"
	MetricDataTypeBoolean    MetricDataType = "boolean"
)

// MetricDescriptor describes a metric without its value
type MetricDescriptor struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    MetricCategory `json:"category"`
	DataType    MetricDataType `json:"data_type"`
	Unit        string         `json:"unit"`
}
