package types

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

type ResponseHealth struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	UptimeSec int64             `json:"uptime_sec"`
	Checks    map[string]string `json:"checks"`
}
