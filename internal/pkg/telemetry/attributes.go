package telemetry

// Span attribute keys.
const (
	AttrMapID       = "geofield.map_id"
	AttrLibrary     = "geofield.library"
	AttrFeatures    = "geofield.features"
	AttrWarnings    = "geofield.warnings"
	AttrThemer      = "geofield.themer"
	AttrRenderDepth = "geofield.render_depth"
	AttrProvider    = "geofield.geocode.provider"
)
