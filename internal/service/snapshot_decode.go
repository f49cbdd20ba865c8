package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

// Remote document field names.
const (
	fieldTutorFullName = "full_name"
	fieldTutorEmail    = "email"
	fieldTutorPassword = "password"
	fieldTutorGroups   = "groups"

	fieldStudentName      = "name"
	fieldStudentEmail     = "email"
	fieldStudentGroup     = "group"
	fieldStudentAge       = "age"
	fieldStudentGender    = "gender"
	fieldStudentClass     = "class"
	fieldStudentActive    = "isActive"
	fieldStudentLastLogin = "lastLogin"

	fieldResponseStudent    = "id_user"
	fieldResponseInstrument = "questionnaire"
	fieldResponseLevel      = "level"
	fieldResponseDate       = "date"
	fieldResponseScore      = "score"

	fieldRecommendationInstrument = "cuestionario"
	fieldRecommendationText       = "recomendacion"
	fieldRecommendationDate       = "fecha"
)

const unnamedStudent = "Sin nombre"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func decodeTutor(doc models.Document) models.Tutor {
	return models.Tutor{
		ID:           doc.ID,
		FullName:     stringField(doc, fieldTutorFullName),
		Email:        stringField(doc, fieldTutorEmail),
		PasswordHash: stringField(doc, fieldTutorPassword),
		Groups:       stringSliceField(doc, fieldTutorGroups),
	}
}

func decodeStudent(doc models.Document) models.Student {
	student := models.Student{
		ID:     doc.ID,
		Name:   strings.TrimSpace(stringField(doc, fieldStudentName)),
		Email:  stringField(doc, fieldStudentEmail),
		Group:  stringField(doc, fieldStudentGroup),
		Class:  stringField(doc, fieldStudentClass),
		Gender: models.NormalizeGender(strings.TrimSpace(stringField(doc, fieldStudentGender))),
	}
	if student.Name == "" {
		student.Name = unnamedStudent
	}
	if raw, ok := doc.Field(fieldStudentAge); ok {
		if age, ok := intValue(raw); ok && age > 0 {
			student.Age = &age
		}
	}
	if raw, ok := doc.Field(fieldStudentActive); ok {
		if active, ok := raw.(bool); ok {
			student.IsActive = active
		}
	}
	if raw, ok := doc.Field(fieldStudentLastLogin); ok && raw != nil {
		if ts, err := parseTimestamp(raw); err == nil {
			student.LastLogin = &ts
		}
	}
	return student
}

// decodeResponse returns an error for records that must be skipped.
func decodeResponse(doc models.Document) (models.QuestionnaireResponse, error) {
	resp := models.QuestionnaireResponse{
		ID:         doc.ID,
		StudentID:  stringField(doc, fieldResponseStudent),
		Instrument: normalizeInstrument(stringField(doc, fieldResponseInstrument)),
	}
	if resp.StudentID == "" {
		return resp, fmt.Errorf("missing %s", fieldResponseStudent)
	}

	rawLevel, _ := doc.Field(fieldResponseLevel)
	level, ok := intValue(rawLevel)
	if !ok || level < models.LevelLow || level > models.MaxLevel {
		return resp, fmt.Errorf("invalid %s %v", fieldResponseLevel, rawLevel)
	}
	resp.Level = level

	rawDate, _ := doc.Field(fieldResponseDate)
	date, err := parseTimestamp(rawDate)
	if err != nil {
		return resp, err
	}
	resp.Date = date

	if rawScore, ok := doc.Field(fieldResponseScore); ok {
		resp.Score, _ = floatValue(rawScore)
	}
	return resp, nil
}

// decodeRecommendation keeps records with unreadable dates; they sort as the oldest.
func decodeRecommendation(studentID string, doc models.Document) models.Recommendation {
	rec := models.Recommendation{
		ID:         doc.ID,
		StudentID:  studentID,
		Instrument: normalizeInstrument(stringField(doc, fieldRecommendationInstrument)),
		Text:       stringField(doc, fieldRecommendationText),
	}
	if raw, ok := doc.Field(fieldRecommendationDate); ok {
		if ts, err := parseTimestamp(raw); err == nil {
			rec.Date = ts
		}
	}
	return rec
}

func normalizeInstrument(raw string) models.Instrument {
	return models.Instrument(strings.ToUpper(strings.TrimSpace(raw)))
}

func stringField(doc models.Document, key string) string {
	raw, ok := doc.Field(key)
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func stringSliceField(doc models.Document, key string) []string {
	raw, ok := doc.Field(key)
	if !ok || raw == nil {
		return []string{}
	}
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func intValue(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case float32:
		return intValue(float64(v))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

func floatValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseTimestamp accepts native times and ISO-8601 strings. Naive strings are read as UTC.
func parseTimestamp(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, fmt.Errorf("zero timestamp")
		}
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("missing timestamp")
		}
		return parseTimestamp(*v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	case nil:
		return time.Time{}, fmt.Errorf("missing timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", raw)
	}
}
