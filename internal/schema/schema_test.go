package schema_test

import (
	"errors"
	"strings"
	"testing"

	"pipeline/internal/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Name: "test",
		Fields: []schema.Field{
			{Name: "title", Required: true, Kind: schema.KindString},
			{Name: "count", Required: true, Kind: schema.KindInt},
			{Name: "explicit", Kind: schema.KindBool},
			{Name: "isrc", Kind: schema.KindString, Normalizer: schema.NormalizeISRC},
			{Name: "tags", Kind: schema.KindList, Elem: &schema.Field{Kind: schema.KindString}},
		},
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	doc := map[string]any{
		// title missing
		"count":    "not a number",
		"explicit": "yes",
		"isrc":     "bad",
	}

	_, err := testSchema().Validate(doc)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}

	want := map[string]bool{
		"title":    false,
		"count":    false,
		"explicit": false,
		"isrc":     false,
	}
	for _, fe := range verr.Fields {
		if _, ok := want[fe.Field]; !ok {
			t.Errorf("unexpected field error: %v", fe)
			continue
		}
		want[fe.Field] = true
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("no error collected for field %q", field)
		}
	}
	if len(verr.Fields) != len(want) {
		t.Errorf("expected %d field errors, got %d: %v", len(want), len(verr.Fields), verr.Fields)
	}
}

func TestValidateFieldOrder(t *testing.T) {
	doc := map[string]any{"count": "x", "explicit": 1}

	_, err := testSchema().Validate(doc)
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	// Errors follow field declaration order.
	got := make([]string, len(verr.Fields))
	for i, fe := range verr.Fields {
		got[i] = fe.Field
	}
	want := []string{"title", "count", "explicit"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("field error order = %v, want %v", got, want)
	}
}

func TestValidateNormalizes(t *testing.T) {
	doc := map[string]any{
		"title": "A Song",
		"count": float64(3),
		"isrc":  "qm-9k-3120-0284",
	}

	out, err := testSchema().Validate(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["isrc"] != "QM9K31200284" {
		t.Errorf("isrc not normalized: %v", out["isrc"])
	}
	// Input document is not mutated.
	if doc["isrc"] != "qm-9k-3120-0284" {
		t.Errorf("input document mutated: %v", doc["isrc"])
	}
}

func TestValidateUnknownFieldsPassThrough(t *testing.T) {
	doc := map[string]any{
		"title":  "A Song",
		"count":  1,
		"custom": "kept",
	}

	out, err := testSchema().Validate(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["custom"] != "kept" {
		t.Errorf("unknown field dropped: %v", out)
	}
}

func TestValidateStrictRejectsUnknownFields(t *testing.T) {
	s := testSchema()
	s.Strict = true

	doc := map[string]any{
		"title":  "A Song",
		"count":  1,
		"custom": "rejected",
	}

	_, err := s.Validate(doc)
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "custom" {
		t.Errorf("expected one unknown-field error, got %v", verr.Fields)
	}
}

func TestValidateNestedPaths(t *testing.T) {
	s := &schema.Schema{
		Name: "nested",
		Fields: []schema.Field{
			{Name: "artist", Required: true, Kind: schema.KindObject, Object: &schema.Schema{
				Name:   "artist",
				Strict: true,
				Fields: []schema.Field{
					{Name: "name", Required: true, Kind: schema.KindString},
				},
			}},
			{Name: "tracks", Kind: schema.KindList, Elem: &schema.Field{Kind: schema.KindObject, Object: &schema.Schema{
				Name: "track",
				Fields: []schema.Field{
					{Name: "isrc", Required: true, Kind: schema.KindString},
				},
			}}},
		},
	}

	doc := map[string]any{
		"artist": map[string]any{},
		"tracks": []any{
			map[string]any{"isrc": "USS1Z9900001"},
			map[string]any{},
		},
	}

	_, err := s.Validate(doc)
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	paths := make(map[string]bool)
	for _, fe := range verr.Fields {
		paths[fe.Field] = true
	}
	if !paths["artist.name"] {
		t.Errorf("missing nested object path, got %v", verr.Fields)
	}
	if !paths["tracks[1].isrc"] {
		t.Errorf("missing list element path, got %v", verr.Fields)
	}
}

func TestValidateEnum(t *testing.T) {
	s := &schema.Schema{
		Name: "action",
		Fields: []schema.Field{
			{Name: "action", Required: true, Kind: schema.KindString, Enum: schema.ValidActions},
		},
	}

	if _, err := s.Validate(map[string]any{"action": "UPSERT"}); err != nil {
		t.Errorf("enum match should be case-insensitive: %v", err)
	}

	_, err := s.Validate(map[string]any{"action": "delete"})
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestRegistryUnknownSchema(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Validate(map[string]any{}, "missing")
	if !errors.Is(err, schema.ErrUnknownSchema) {
		t.Errorf("expected ErrUnknownSchema, got %v", err)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := schema.NewRegistry()
	if err := r.Register(&schema.Schema{Name: "dup"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&schema.Schema{Name: "dup"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestTakedownSchema(t *testing.T) {
	r := schema.DefaultRegistry()

	doc := map[string]any{"action": "takedown", "amw_key": "123"}
	out, err := r.Validate(doc, "takedown")
	if err != nil {
		t.Fatalf("minimal takedown should validate: %v", err)
	}
	if out["amw_key"] != "123" {
		t.Errorf("unexpected output: %v", out)
	}

	// Takedowns may carry the full original document.
	doc["title"] = "Extra"
	if _, err := r.Validate(doc, "takedown"); err != nil {
		t.Errorf("takedown with extra fields should validate: %v", err)
	}
}

func TestTakedownSchemaInvalid(t *testing.T) {
	r := schema.DefaultRegistry()

	tests := []map[string]any{
		{},
		{"action": "takedown"},
		{"amw_key": "123"},
		{"action": "discontinue", "amw_key": "123"},
	}

	for _, doc := range tests {
		if _, err := r.Validate(doc, "takedown"); err == nil {
			t.Errorf("takedown %v should not validate", doc)
		}
	}
}

func validTrackBundle() map[string]any {
	usageRules := map[string]any{
		"allow_bundle":              true,
		"allow_burn_play_on_pc":     true,
		"allow_burn_to_cd":          true,
		"allow_mobile":              true,
		"allow_permanent":           true,
		"allow_promotional":         true,
		"allow_streaming":           true,
		"allow_subscription":        true,
		"allow_transfer_to_nsdmi":   false,
		"allow_transfer_to_sdmi":    false,
		"allow_unbundle":            false,
		"delete_on_clock_rollback":  false,
		"disable_on_clock_rollback": false,
		"drm_free":                  true,
		"limited":                   false,
	}
	product := map[string]any{
		"action":          "upsert",
		"amw_key":         "bundle-1",
		"artist":          map[string]any{"name": "Example Artist"},
		"copyright":       map[string]any{"text": "2024 Example Records", "year": 2024},
		"explicit_lyrics": false,
		"genre":           "Electronic",
		"media":           map[string]any{"source": "audio/bundle-1.flac"},
		"provider": map[string]any{
			"name": "example-provider",
			"labels": []any{
				map[string]any{
					"name": "Example Records",
					"sub_labels": []any{
						map[string]any{"name": "Example Digital", "countries": []any{"US", "GB"}},
					},
				},
			},
		},
		"sales_territories": []any{
			map[string]any{"country_code": "US", "sales_start_date": "2024-01-15"},
		},
		"title":       "Example Album",
		"usage_rules": usageRules,
	}

	track := map[string]any{}
	for k, v := range product {
		track[k] = v
	}
	track["amw_key"] = "track-1"
	track["title"] = "Example Track"
	track["index"] = 1
	track["isrc"] = "qm-9k-3120-0284"
	track["number"] = 1
	track["volume"] = 1
	track["media"] = map[string]any{"source": "audio/track-1.flac"}

	bundle := map[string]any{}
	for k, v := range product {
		bundle[k] = v
	}
	bundle["internal_id"] = "internal-1"
	bundle["release"] = map[string]any{"date": "2024-01-15", "year": 2024}
	bundle["track_count"] = 1
	bundle["tracks"] = []any{track}
	bundle["type"] = "Album"
	bundle["upc"] = "00616892587125"
	bundle["volume_count"] = 1
	return bundle
}

func TestTrackBundleSchema(t *testing.T) {
	r := schema.DefaultRegistry()

	out, err := r.Validate(validTrackBundle(), "track_bundle")
	if err != nil {
		t.Fatalf("valid track bundle should validate: %v", err)
	}

	if out["upc"] != "616892587125" {
		t.Errorf("bundle UPC not normalized: %v", out["upc"])
	}

	tracks := out["tracks"].([]any)
	track := tracks[0].(map[string]any)
	if track["isrc"] != "QM9K31200284" {
		t.Errorf("track ISRC not normalized: %v", track["isrc"])
	}

	release := out["release"].(map[string]any)
	if release["date"] != "2024-01-15T00:00:00Z" {
		t.Errorf("release date not normalized: %v", release["date"])
	}
}

func TestTrackBundleSchemaAggregatesErrors(t *testing.T) {
	doc := validTrackBundle()
	delete(doc, "title")
	delete(doc, "upc")
	doc["tracks"].([]any)[0].(map[string]any)["isrc"] = "nope"

	_, err := schema.DefaultRegistry().Validate(doc, "track_bundle")
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	paths := make(map[string]bool)
	for _, fe := range verr.Fields {
		paths[fe.Field] = true
	}
	for _, want := range []string{"title", "upc", "tracks[0].isrc"} {
		if !paths[want] {
			t.Errorf("expected error for %q, got %v", want, verr.Fields)
		}
	}
}
