package schema

// Built-in schemas for the music-delivery document types exchanged by
// the pipeline services. Schemas derived from the product base are
// strict: providers deliver fixed document shapes and unknown fields
// indicate a feed problem.

// Actions a delivery can request.
var ValidActions = []string{"upsert", "takedown"}

func artistSchema() *Schema {
	return &Schema{
		Name:   "artist",
		Strict: true,
		Fields: []Field{
			{Name: "name", Required: true, Kind: KindString},
			{Name: "url", Kind: KindString},
		},
	}
}

func participantSchema() *Schema {
	return &Schema{
		Name:   "participant",
		Strict: true,
		Fields: []Field{
			{Name: "name", Required: true, Kind: KindString},
			{Name: "role", Required: true, Kind: KindString},
		},
	}
}

func copyrightSchema() *Schema {
	return &Schema{
		Name:   "copyright",
		Strict: true,
		Fields: []Field{
			{Name: "text", Required: true, Kind: KindString},
			{Name: "year", Kind: KindInt},
		},
	}
}

func mediaSchema() *Schema {
	return &Schema{
		Name:   "media",
		Strict: true,
		Fields: []Field{
			{Name: "count", Kind: KindInt},
			{Name: "number", Kind: KindInt},
			{Name: "source", Required: true, Kind: KindString},
		},
	}
}

func physicalProductSchema() *Schema {
	return &Schema{
		Name:   "physical_product",
		Strict: true,
		Fields: []Field{
			{Name: "artist", Required: true, Kind: KindString},
			{Name: "name", Required: true, Kind: KindString},
			{Name: "upc", Required: true, Kind: KindString, Normalizer: NormalizeUPC},
		},
	}
}

func releaseSchema() *Schema {
	return &Schema{
		Name:   "release",
		Strict: true,
		Fields: []Field{
			{Name: "date", Required: true, Kind: KindString, Normalizer: NormalizeDate},
			{Name: "year", Required: true, Kind: KindInt},
		},
	}
}

func providerSchema() *Schema {
	subLabel := &Schema{
		Name:   "sub_label",
		Strict: true,
		Fields: []Field{
			{Name: "name", Required: true, Kind: KindString},
			{Name: "countries", Required: true, Kind: KindList, Elem: &Field{Kind: KindString}},
		},
	}
	label := &Schema{
		Name:   "label",
		Strict: true,
		Fields: []Field{
			{Name: "name", Required: true, Kind: KindString},
			{Name: "sub_labels", Required: true, Kind: KindList, Elem: &Field{Kind: KindObject, Object: subLabel}},
		},
	}
	return &Schema{
		Name:   "provider",
		Strict: true,
		Fields: []Field{
			{Name: "name", Required: true, Kind: KindString},
			{Name: "labels", Required: true, Kind: KindList, Elem: &Field{Kind: KindObject, Object: label}},
		},
	}
}

func salesTerritorySchema() *Schema {
	return &Schema{
		Name:   "sales_territory",
		Strict: true,
		Fields: []Field{
			{Name: "country_code", Required: true, Kind: KindString},
			{Name: "price_code", Kind: KindString},
			{Name: "sales_start_date", Required: true, Kind: KindString, Normalizer: NormalizeDate},
			{Name: "sales_end_date", Kind: KindString, Normalizer: NormalizeDate},
		},
	}
}

func usageRulesSchema() *Schema {
	names := []string{
		"allow_bundle",
		"allow_burn_play_on_pc",
		"allow_burn_to_cd",
		"allow_mobile",
		"allow_permanent",
		"allow_promotional",
		"allow_streaming",
		"allow_subscription",
		"allow_transfer_to_nsdmi",
		"allow_transfer_to_sdmi",
		"allow_unbundle",
		"delete_on_clock_rollback",
		"disable_on_clock_rollback",
		"drm_free",
		"limited",
	}
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Required: true, Kind: KindBool}
	}
	return &Schema{Name: "usage_rules", Strict: true, Fields: fields}
}

// productFields are the fields shared by every deliverable product.
func productFields() []Field {
	return []Field{
		{Name: "action", Required: true, Kind: KindString, Enum: ValidActions},
		{Name: "amw_key", Required: true, Kind: KindString},
		{Name: "artist", Required: true, Kind: KindObject, Object: artistSchema()},
		{Name: "copyright", Required: true, Kind: KindObject, Object: copyrightSchema()},
		{Name: "duration", Kind: KindInt},
		{Name: "explicit_lyrics", Required: true, Kind: KindBool},
		{Name: "genre", Required: true, Kind: KindString},
		{Name: "media", Required: true, Kind: KindObject, Object: mediaSchema()},
		{Name: "provider", Required: true, Kind: KindObject, Object: providerSchema()},
		{Name: "publisher", Kind: KindString},
		{Name: "sales_territories", Required: true, Kind: KindList, Elem: &Field{Kind: KindObject, Object: salesTerritorySchema()}},
		{Name: "title", Required: true, Kind: KindString},
		{Name: "usage_rules", Required: true, Kind: KindObject, Object: usageRulesSchema()},
		{Name: "version", Kind: KindString},
	}
}

// TrackSchema extends the product base with track-specific fields.
func TrackSchema() *Schema {
	fields := append(productFields(),
		Field{Name: "index", Required: true, Kind: KindInt},
		Field{Name: "internal_id", Kind: KindString},
		Field{Name: "isrc", Required: true, Kind: KindString, Normalizer: NormalizeISRC},
		Field{Name: "number", Required: true, Kind: KindInt},
		Field{Name: "participants", Kind: KindList, Elem: &Field{Kind: KindObject, Object: participantSchema()}},
		Field{Name: "title_extended", Kind: KindString},
		Field{Name: "volume", Required: true, Kind: KindInt},
		Field{Name: "windows_drm_id", Kind: KindString},
	)
	return &Schema{Name: "track", Strict: true, Fields: fields}
}

// TrackBundleSchema extends the product base with bundle-level fields.
func TrackBundleSchema() *Schema {
	fields := append(productFields(),
		Field{Name: "catalog_number", Kind: KindString},
		Field{Name: "ean", Kind: KindString},
		Field{Name: "grid", Kind: KindString},
		Field{Name: "icpn", Kind: KindString},
		Field{Name: "internal_id", Required: true, Kind: KindString},
		Field{Name: "physical", Kind: KindObject, Object: physicalProductSchema()},
		Field{Name: "product_code", Kind: KindString},
		Field{Name: "release", Required: true, Kind: KindObject, Object: releaseSchema()},
		Field{Name: "track_count", Required: true, Kind: KindInt},
		Field{Name: "tracks", Required: true, Kind: KindList, Elem: &Field{Kind: KindObject, Object: TrackSchema()}},
		Field{Name: "type", Required: true, Kind: KindString},
		Field{Name: "upc", Required: true, Kind: KindString, Normalizer: NormalizeUPC},
		Field{Name: "volume_count", Required: true, Kind: KindInt},
	)
	return &Schema{Name: "track_bundle", Strict: true, Fields: fields}
}

// TakedownSchema validates the minimal takedown request. Takedowns may
// carry the full original document, so the schema is not strict.
func TakedownSchema() *Schema {
	return &Schema{
		Name: "takedown",
		Fields: []Field{
			{Name: "action", Required: true, Kind: KindString, Enum: ValidActions},
			{Name: "amw_key", Required: true, Kind: KindString},
		},
	}
}

// DefaultRegistry returns a registry populated with the built-in
// document schemas, keyed by event name.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(TrackSchema())
	r.MustRegister(TrackBundleSchema())
	r.MustRegister(TakedownSchema())
	return r
}
