package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/source"
)

// TransformContext berisi nilai yang sama untuk seluruh run.
type TransformContext struct {
	Table string
	Now   time.Time
	// CourierPasswordHash: bcrypt dari password default kurir, dihitung sekali per run.
	CourierPasswordHash string
	Logger              *zap.Logger
}

func (tc *TransformContext) warn(msg string, fields ...zap.Field) {
	if tc.Logger != nil {
		tc.Logger.Warn(msg, append(fields, zap.String("table", tc.Table))...)
	}
}

// format tanggal yang ditemukan di data lama
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
}

func chain(fns ...TransformFunc) TransformFunc {
	return func(row source.Row, tc *TransformContext) (source.Row, error) {
		var err error
		for _, fn := range fns {
			if row, err = fn(row, tc); err != nil {
				return nil, err
			}
		}
		return row, nil
	}
}

func trimStrings(row source.Row, _ *TransformContext) (source.Row, error) {
	for k, v := range row {
		if s, ok := v.(string); ok {
			row[k] = strings.TrimSpace(s)
		}
	}
	return row, nil
}

// requireStrings: kolom NOT NULL bertipe teks. NULL jadi "" (validator yang menandai),
// angka dari dump dijadikan teks.
func requireStrings(cols ...string) TransformFunc {
	return func(row source.Row, _ *TransformContext) (source.Row, error) {
		for _, c := range cols {
			switch v := row[c].(type) {
			case nil:
				row[c] = ""
			case string:
			default:
				row[c] = fmt.Sprint(v)
			}
		}
		return row, nil
	}
}

// coerceInts mengubah nilai angka legacy secara exact. Nilai yang bukan bilangan bulat
// disimpan sebagai 0 (id: NULL) supaya validator yang menandainya.
func coerceInts(cols ...string) TransformFunc {
	return func(row source.Row, tc *TransformContext) (source.Row, error) {
		for _, c := range cols {
			v, present := row[c]
			if !present || v == nil {
				if c != "id" {
					row[c] = int64(0)
				}
				continue
			}
			n, err := ExactInt(v)
			if err != nil {
				tc.warn("Non-integer legacy value", zap.String("column", c), zap.Any("value", v), zap.Error(err))
				if c == "id" {
					row[c] = nil
				} else {
					row[c] = int64(0)
				}
				continue
			}
			row[c] = n
		}
		return row, nil
	}
}

// ExactInt mengonversi nilai legacy (int, float, teks "3", "3.00", "1e2") menjadi int64
// tanpa pembulatan diam-diam: "2.5" ditolak.
func ExactInt(v interface{}) (int64, error) {
	var d apd.Decimal
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if _, _, err := d.SetString(fmt.Sprint(val)); err != nil {
			return 0, err
		}
	case float32:
		if _, err := d.SetFloat64(float64(val)); err != nil {
			return 0, err
		}
	case float64:
		if _, err := d.SetFloat64(val); err != nil {
			return 0, err
		}
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, fmt.Errorf("empty value")
		}
		if _, _, err := d.SetString(s); err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	case []byte:
		return ExactInt(string(val))
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}

	if d.Form != apd.Finite {
		return 0, fmt.Errorf("not a finite number: %s", d.String())
	}
	var reduced apd.Decimal
	reduced.Reduce(&d)
	if reduced.Exponent < 0 {
		return 0, fmt.Errorf("not an integer: %s", d.String())
	}
	n, err := reduced.Int64()
	if err != nil {
		return 0, fmt.Errorf("out of range: %s", d.String())
	}
	return n, nil
}

// mapStatus menerima status angka maupun label lama ("Terkirim", "diterima sebagian").
// Label yang tidak dikenal diperlakukan seperti coerceInts.
func mapStatus(col string) TransformFunc {
	toInt := coerceInts(col)
	return func(row source.Row, tc *TransformContext) (source.Row, error) {
		if s, ok := row[col].(string); ok {
			if status, found := model.StatusFromName(s); found {
				row[col] = int64(status)
				return row, nil
			}
		}
		return toInt(row, tc)
	}
}

// parseDates mengubah teks tanggal menjadi time.Time; tanggal yang tidak bisa dibaca jadi NULL.
func parseDates(cols ...string) TransformFunc {
	return func(row source.Row, tc *TransformContext) (source.Row, error) {
		for _, c := range cols {
			switch v := row[c].(type) {
			case nil, time.Time:
			case string:
				t, ok := ParseLegacyDate(v)
				if !ok {
					tc.warn("Unparseable legacy date", zap.String("column", c), zap.String("value", v))
					row[c] = nil
					continue
				}
				row[c] = t
			default:
				tc.warn("Unexpected date type", zap.String("column", c), zap.String("type", fmt.Sprintf("%T", v)))
				row[c] = nil
			}
		}
		return row, nil
	}
}

// ParseLegacyDate mencoba semua format tanggal yang dikenal.
func ParseLegacyDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stampTimestamps mengisi created_at/updated_at yang kosong.
func stampTimestamps(row source.Row, tc *TransformContext) (source.Row, error) {
	created := tc.Now
	switch v := row["created_at"].(type) {
	case time.Time:
		created = v
	case string:
		if t, ok := ParseLegacyDate(v); ok {
			created = t
		}
	}
	row["created_at"] = created

	switch v := row["updated_at"].(type) {
	case time.Time:
	case string:
		if t, ok := ParseLegacyDate(v); ok {
			row["updated_at"] = t
		} else {
			row["updated_at"] = created
		}
	default:
		row["updated_at"] = created
	}
	return row, nil
}

// courierDefaultPassword: setiap kurir yang dimigrasikan mendapat password default yang sama.
func courierDefaultPassword(row source.Row, tc *TransformContext) (source.Row, error) {
	if tc.CourierPasswordHash == "" {
		return nil, fmt.Errorf("courier default password hash is not prepared")
	}
	row["password"] = tc.CourierPasswordHash
	return row, nil
}
