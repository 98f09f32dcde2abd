package native

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"

	"go.uber.org/zap"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/errors"
)

// Buffers is the slice of a module handle the float map builder needs.
type Buffers interface {
	lensfun.Memory
	lensfun.Allocator
}

// Validator is implemented by decoded records that can check themselves.
type Validator interface {
	Validate() error
}

// RequiredString rejects empty or whitespace-only values.
func RequiredString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.InvalidArgument(field, "is required")
	}
	return nil
}

// RequirePositiveInt rejects values that are not strictly positive or do
// not fit a native s32.
func RequirePositiveInt(value int, field string) error {
	if value <= 0 || int64(value) > math.MaxInt32 {
		return errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Field(field).
			Value(value).
			Detail("must be a positive integer, got %d", value).
			Build()
	}
	return nil
}

// ToFlag encodes a bool as the native 1/0 flag.
func ToFlag(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// ToGrid returns the number of samples along an axis of size pixels
// sampled every step pixels.
func ToGrid(size, step int) int {
	return (size-1)/step + 1
}

// ParseJSONPtr decodes the JSON array at ptr and releases it with free.
// A null pointer or an empty payload yields an empty result and, for the
// null pointer, no free call. A non-null pointer is freed exactly once
// whatever the outcome of decoding.
func ParseJSONPtr[T any](ctx context.Context, mem lensfun.Memory, free lensfun.Func, ptr uint32) ([]T, error) {
	if ptr == 0 {
		return []T{}, nil
	}

	text, readErr := mem.ReadString(ptr)
	if _, err := free(ctx, ptr); err != nil {
		Logger().Warn("failed to free native payload",
			zap.Uint32("ptr", ptr),
			zap.Error(err))
		if readErr == nil {
			return nil, err
		}
	}
	if readErr != nil {
		return nil, readErr
	}

	return DecodeRecords[T](text)
}

// DecodeRecords decodes a JSON array of objects. Each element must be an
// object; elements implementing Validator are checked. Nothing is returned
// on failure.
func DecodeRecords[T any](text string) ([]T, error) {
	if text == "" {
		return []T{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, errors.Decode("native payload is not a JSON array", err)
	}

	out := make([]T, 0, len(raw))
	for i, elem := range raw {
		if !bytes.HasPrefix(bytes.TrimSpace(elem), []byte("{")) {
			return nil, errors.New(errors.PhaseDecode, errors.KindDecode).
				Value(i).
				Detail("element %d is not an object", i).
				Build()
		}
		var rec T
		if err := json.Unmarshal(elem, &rec); err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindDecode).
				Value(i).
				Detail("element %d", i).
				Cause(err).
				Build()
		}
		if v, ok := any(&rec).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, errors.New(errors.PhaseDecode, errors.KindDecode).
					Value(i).
					Detail("element %d", i).
					Cause(err).
					Build()
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// RunFloatMap allocates a buffer of size floats, calls fn with args
// followed by the buffer pointer and size, and copies the buffer out. The
// buffer is freed exactly once on every path.
func RunFloatMap(ctx context.Context, mod Buffers, symbol string, fn lensfun.Func, size int, args ...any) (out []float32, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size <= 0 || uint64(size)*4 > math.MaxUint32 {
		return nil, errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Symbol(symbol).
			Field("size").
			Value(size).
			Detail("map of %d floats cannot be allocated", size).
			Build()
	}

	ptr, err := mod.Malloc(ctx, uint32(size)*4)
	if err != nil {
		return nil, err
	}
	Logger().Debug("allocated float map",
		zap.String("symbol", symbol),
		zap.Uint32("ptr", ptr),
		zap.Int("floats", size))

	defer func() {
		if ferr := mod.Free(ctx, ptr); ferr != nil {
			Logger().Warn("failed to free float map",
				zap.String("symbol", symbol),
				zap.Uint32("ptr", ptr),
				zap.Error(ferr))
			if err == nil {
				out, err = nil, ferr
			}
		}
	}()

	callArgs := make([]any, 0, len(args)+2)
	callArgs = append(callArgs, args...)
	callArgs = append(callArgs, ptr, int32(size))

	raw, err := fn(ctx, callArgs...)
	if err != nil {
		return nil, err
	}
	if status := int32(uint32(raw)); status != 0 {
		Logger().Debug("native map builder failed",
			zap.String("symbol", symbol),
			zap.Int32("code", status))
		return nil, errors.NativeComputation(symbol, status)
	}

	// Read through the float view: index ptr>>2.
	return mod.ReadFloat32s((ptr>>2)<<2, uint32(size))
}
