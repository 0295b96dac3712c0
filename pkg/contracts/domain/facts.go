package domain

// Operations metric field names
const (
	FieldRevenue       = "revenue"
	FieldCost          = "cost"
	FieldOutputQty     = "output_qty"
	FieldDowntimeHours = "downtime_hours"
)

// OperationMetricFields lists the fixed numeric fields of an operations row in scan order.
var OperationMetricFields = []string{FieldRevenue, FieldCost, FieldOutputQty, FieldDowntimeHours}

// FactOperationRecord is a cleansed factory-level operations fact for one month.
type FactOperationRecord struct {
	FactoryCode   string             `json:"factory_code" validate:"required"`
	Year          int                `json:"year" validate:"required,min=1"`
	Month         int                `json:"month" validate:"required,min=1,max=12"`
	Revenue       *float64           `json:"revenue,omitempty"`
	Cost          *float64           `json:"cost,omitempty"`
	OutputQty     *float64           `json:"output_qty,omitempty"`
	DowntimeHours *float64           `json:"downtime_hours,omitempty"`
	Extra         map[string]float64 `json:"extra,omitempty"`
}

// SetMetric stores a named metric, routing fixed field names to their columns.
func (r *FactOperationRecord) SetMetric(name string, value float64) {
	v := value
	switch name {
	case FieldRevenue:
		r.Revenue = &v
	case FieldCost:
		r.Cost = &v
	case FieldOutputQty:
		r.OutputQty = &v
	case FieldDowntimeHours:
		r.DowntimeHours = &v
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]float64)
		}
		r.Extra[name] = v
	}
}

// FactKpiRecord is a cleansed employee KPI fact for one month.
type FactKpiRecord struct {
	EmployeeID  string   `json:"employee_id" validate:"required"`
	FactoryCode *string  `json:"factory_code,omitempty"`
	MetricCode  string   `json:"metric_code" validate:"required"`
	Value       float64  `json:"value"`
	Target      *float64 `json:"target,omitempty"`
	Year        int      `json:"year" validate:"required,min=1"`
	Month       int      `json:"month" validate:"required,min=1,max=12"`
}

// AliasMaps holds alias → canonical code lookups for dimension resolution.
type AliasMaps struct {
	Factory  map[string]string `json:"factory"`
	Employee map[string]string `json:"employee"`
}
