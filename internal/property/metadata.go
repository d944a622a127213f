package property

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// GeohashPrecision is the number of geohash characters stored per property
// (roughly a 150m cell).
const GeohashPrecision = 7

//go:embed schema/metadata.json
var metadataSchemaJSON []byte

var metadataSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metadata.json", bytes.NewReader(metadataSchemaJSON)); err != nil {
		panic(fmt.Sprintf("adding metadata schema: %v", err))
	}
	schema, err := compiler.Compile("metadata.json")
	if err != nil {
		panic(fmt.Sprintf("compiling metadata schema: %v", err))
	}
	return schema
}

// ValidateMetadata checks token metadata JSON against the metadata schema.
// Empty metadata is valid.
func ValidateMetadata(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("metadata is not valid JSON: %w", err)
	}
	if err := metadataSchema.Validate(v); err != nil {
		return fmt.Errorf("metadata schema validation failed: %w", err)
	}
	return nil
}

// Geohash encodes a coordinate at GeohashPrecision.
func Geohash(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, GeohashPrecision)
}

// metadataFields are the known fields pulled out of token metadata.
type metadataFields struct {
	Address      *string
	City         *string
	Country      *string
	Latitude     *float64
	Longitude    *float64
	Bedrooms     *float64
	Bathrooms    *float64
	Sqft         *int64
	YearBuilt    *int64
	PropertyType *string
	Description  *string
	PhotoURL     string
}

// parseMetadata extracts known fields from token metadata. Unknown or
// malformed fields are ignored.
func parseMetadata(raw json.RawMessage) metadataFields {
	var f metadataFields

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return f
	}

	// Some minters nest attributes under "properties".
	if nested, ok := data["properties"]; ok {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(nested, &m); err == nil {
			for k, v := range m {
				if _, exists := data[k]; !exists {
					data[k] = v
				}
			}
		}
	}

	f.Address = jsonString(data, "address", "street")
	f.City = jsonString(data, "city")
	f.Country = jsonString(data, "country")
	f.Latitude = jsonFloat64(data, "latitude", "lat")
	f.Longitude = jsonFloat64(data, "longitude", "lng", "lon")
	f.Bedrooms = jsonFloat64(data, "bedrooms", "beds")
	f.Bathrooms = jsonFloat64(data, "bathrooms", "baths")
	f.Sqft = jsonInt64(data, "sqft", "living_area")
	f.YearBuilt = jsonInt64(data, "year_built")
	f.PropertyType = jsonString(data, "type", "property_type")
	f.Description = jsonString(data, "description")
	f.PhotoURL = extractPhotoURL(data)

	return f
}

// extractPhotoURL prefers the first photo tagged "house_view", then the
// first photo, then the top-level image.
func extractPhotoURL(data map[string]json.RawMessage) string {
	var photos []struct {
		Href string `json:"href"`
		Tags []struct {
			Label string `json:"label"`
		} `json:"tags"`
	}
	if raw, ok := data["photos"]; ok {
		if err := json.Unmarshal(raw, &photos); err != nil {
			photos = nil
		}
	}

	for _, p := range photos {
		for _, t := range p.Tags {
			if t.Label == "house_view" && p.Href != "" {
				return p.Href
			}
		}
	}
	if len(photos) > 0 && photos[0].Href != "" {
		return photos[0].Href
	}

	if image := jsonString(data, "image"); image != nil {
		return *image
	}
	return ""
}

// parseLocation splits an on-chain location string of the form
// "street, city, country" and overlays metadata fields.
func parseLocation(onChain string, f metadataFields) Location {
	var loc Location

	parts := strings.Split(onChain, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) >= 3:
		loc.Address = strings.Join(parts[:len(parts)-2], ", ")
		loc.City = parts[len(parts)-2]
		loc.Country = parts[len(parts)-1]
	case len(parts) == 2:
		loc.Address = parts[0]
		loc.City = parts[1]
	default:
		loc.Address = parts[0]
	}

	if f.Address != nil {
		loc.Address = *f.Address
	}
	if f.City != nil {
		loc.City = *f.City
	}
	if f.Country != nil {
		loc.Country = *f.Country
	}
	if f.Latitude != nil && f.Longitude != nil {
		loc.Latitude = f.Latitude
		loc.Longitude = f.Longitude
	}
	return loc
}

// jsonInt64 tries multiple keys and returns the first valid int64 value.
func jsonInt64(data map[string]json.RawMessage, keys ...string) *int64 {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			i := int64(v)
			return &i
		}
	}
	return nil
}

// jsonFloat64 tries multiple keys and returns the first valid float64 value.
func jsonFloat64(data map[string]json.RawMessage, keys ...string) *float64 {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return &v
		}
	}
	return nil
}

// jsonString tries multiple keys and returns the first non-empty string value.
func jsonString(data map[string]json.RawMessage, keys ...string) *string {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil && v != "" {
			return &v
		}
	}
	return nil
}
