package trace

import "math"

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points.
func HaversineKM(from Location, to Location) float64 {
	lat1 := degreesToRadians(from.Lat)
	lat2 := degreesToRadians(to.Lat)
	dLat := lat2 - lat1
	dLon := degreesToRadians(to.Lon - from.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
