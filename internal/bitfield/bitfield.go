// Package bitfield packs and unpacks tagged struct fields into a single
// integer. It is the kernel's generalization of a small packer the
// original codebase carried for page-flag words; here it backs both PTE
// flag words (§3 PageTable) and the TrapFrame status word (§3 TrapFrame),
// so a single reflection-driven implementation serves every fixed-layout
// bitfield in the kernel instead of one hand-written packer per struct.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing and unpacking.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer
	// representation. Zero means unchecked.
	NumBits uint
}

const tagName = "bitfield"

// Pack packs the tagged fields of struct x, in field declaration order
// starting at bit 0, into a single uint64. Only fields carrying a
// `bitfield:",N"` tag participate; untagged fields are ignored.
func Pack(x interface{}, c *Config) (uint64, error) {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield.Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var packed uint64
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok, err := fieldWidth(field)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		fieldValue, err := valueBits(v.Field(i), field.Name)
		if err != nil {
			return 0, err
		}

		maxValue := uint64(1)<<bits - 1
		if fieldValue > maxValue {
			return 0, fmt.Errorf("bitfield.Pack: value %d exceeds %d bits for field %s", fieldValue, bits, field.Name)
		}

		packed |= fieldValue << bitOffset
		bitOffset += bits
	}

	if c != nil && c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield.Pack: total width %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack is the inverse of Pack: it distributes the bits of packed into
// the tagged fields of the struct pointed to by x, in field declaration
// order starting at bit 0.
func Unpack(x interface{}, packed uint64) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield.Unpack: expected pointer to struct, got %v", v.Kind())
	}
	v = v.Elem()
	t := v.Type()

	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok, err := fieldWidth(field)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		mask := uint64(1)<<bits - 1
		raw := (packed >> bitOffset) & mask
		bitOffset += bits
		if !v.Field(i).CanSet() {
			continue
		}

		if err := setValueBits(v.Field(i), raw); err != nil {
			return fmt.Errorf("bitfield.Unpack: field %s: %w", field.Name, err)
		}
	}
	return nil
}

func fieldWidth(field reflect.StructField) (bits uint, ok bool, err error) {
	tag := field.Tag.Get(tagName)
	if tag == "" {
		return 0, false, nil
	}
	if _, scanErr := fmt.Sscanf(tag, ",%d", &bits); scanErr != nil {
		return 0, false, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, field.Name)
	}
	if bits == 0 {
		return 0, false, nil
	}
	return bits, true, nil
}

func valueBits(fv reflect.Value, name string) (uint64, error) {
	switch fv.Kind() {
	case reflect.Bool:
		if fv.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val := fv.Int()
		if val < 0 {
			return 0, fmt.Errorf("bitfield: negative value %d for field %s", val, name)
		}
		return uint64(val), nil
	default:
		return 0, fmt.Errorf("bitfield: unsupported field type %v for field %s", fv.Kind(), name)
	}
}

func setValueBits(fv reflect.Value, raw uint64) error {
	switch fv.Kind() {
	case reflect.Bool:
		fv.SetBool(raw != 0)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fv.SetUint(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fv.SetInt(int64(raw))
	default:
		return fmt.Errorf("unsupported field type %v", fv.Kind())
	}
	return nil
}
