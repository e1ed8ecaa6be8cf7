// internal/validation/rules.go
package validation

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var (
	phonePattern  = regexp.MustCompile(`^\+?[0-9\s\-\.\(\)]+$`)
	shipNoPattern = regexp.MustCompile(`^[A-Z]{3}(\d{8})\d{3}$`)
	gormColumnRe  = regexp.MustCompile(`(?:^|;)\s*column:([^;]+)`)
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// RuleSet membungkus validator struct-tag dengan aturan tambahan domain pengiriman:
// tag `phone` dan `shipno`.
type RuleSet struct {
	validate *validator.Validate
	region   string
}

func NewRuleSet(region string) (*RuleSet, error) {
	if region == "" {
		region = "ID"
	}
	rs := &RuleSet{validate: validator.New(), region: strings.ToUpper(region)}

	// nama field di error = nama kolom database
	rs.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if m := gormColumnRe.FindStringSubmatch(f.Tag.Get("gorm")); m != nil {
			return strings.TrimSpace(m[1])
		}
		return f.Name
	})

	if err := rs.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return rs.ValidPhone(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	if err := rs.validate.RegisterValidation("shipno", func(fl validator.FieldLevel) bool {
		return ValidShipmentNumber(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	return rs, nil
}

// Struct menjalankan semua tag validasi pada record.
func (rs *RuleSet) Struct(record interface{}) error {
	return rs.validate.Struct(record)
}

// ValidPhone: digit dengan + di depan dan pemisah opsional, 7-15 digit, dan
// "possible number" untuk region yang dikonfigurasi.
func (rs *RuleSet) ValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !phonePattern.MatchString(s) {
		return false
	}
	digits := countDigits(s)
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return false
	}
	num, err := libphonenumber.Parse(s, rs.region)
	if err != nil {
		return false
	}
	return libphonenumber.IsPossibleNumber(num)
}

// NormalizePhone membuang semua karakter selain digit (dan + di depan).
// ok=false jika hasilnya tetap bukan nomor yang valid.
func (rs *RuleSet) NormalizePhone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if !rs.ValidPhone(out) {
		return "", false
	}
	return out, true
}

var genderAliases = map[string]string{
	"l": "L", "laki-laki": "L", "laki laki": "L", "lakilaki": "L", "pria": "L", "m": "L", "male": "L",
	"p": "P", "perempuan": "P", "wanita": "P", "w": "P", "f": "P", "female": "P",
}

// NormalizeGender memetakan variasi penulisan jenis kelamin ke L/P.
func NormalizeGender(s string) (string, bool) {
	v, ok := genderAliases[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// ValidShipmentNumber: tiga huruf kapital, tanggal YYYYMMDD yang nyata, tiga digit urut.
func ValidShipmentNumber(s string) bool {
	m := shipNoPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	_, err := time.Parse("20060102", m[1])
	return err == nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
