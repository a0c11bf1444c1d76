package models

import geojson "github.com/paulmach/go.geojson"

// NearbyToGeoJSON converts the composite nearby response into a GeoJSON
// FeatureCollection of Point features, one per stop.
func NearbyToGeoJSON(resp NearbyResponse) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, stop := range resp.Stops {
		feature := geojson.NewPointFeature([]float64{stop.Lon, stop.Lat})
		feature.SetProperty("code", stop.Code)
		feature.SetProperty("name", stop.Name)
		feature.SetProperty("distanceMeters", stop.DistanceMeters)
		feature.SetProperty("arrivals", stop.Arrivals)
		fc.AddFeature(feature)
	}
	return fc
}
