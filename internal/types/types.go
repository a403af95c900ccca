// README: Common value objects shared across modules.
package types

// ID identifies a logical entity (solicitante, operador, ambulancia) for
// persistence and by-id websocket delivery.
type ID int64

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"latitud"`
	Lng float64 `json:"longitud"`
}

// Valid reports whether the point is inside the representable coordinate
// ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
