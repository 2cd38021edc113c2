package util

import "reflect"

// seen tracks the pointer-like objects (maps, slices, pointers) already
// copied within one DeepCopy call, keyed by their address. A hit means a
// cycle: the partially built copy is returned to terminate the walk.
type seen map[uintptr]interface{}

// DeepCopy returns a copy of src sharing no mutable structure with it. The
// snapshot read surface routes every returned value through here so callers
// can never alias engine state. Cyclic values are handled; concrete numeric
// types are preserved (an int stays an int).
func DeepCopy(src interface{}) interface{} {
	if src == nil {
		return nil
	}
	return deepCopy(src, make(seen))
}

func deepCopy(src interface{}, visited seen) interface{} {
	if src == nil {
		return nil
	}

	original := reflect.ValueOf(src)
	switch original.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		if cpy, exists := visited[original.Pointer()]; exists {
			return cpy
		}
	}

	// Fast path for the shapes form values actually take: generic maps,
	// generic slices, and scalars. Everything else falls back to the
	// reflective copier.
	switch v := src.(type) {
	case map[string]interface{}:
		cpy := make(map[string]interface{}, len(v))
		visited[reflect.ValueOf(v).Pointer()] = cpy
		for key, value := range v {
			cpy[key] = deepCopy(value, visited)
		}
		return cpy

	case []interface{}:
		cpy := make([]interface{}, len(v), cap(v))
		visited[reflect.ValueOf(v).Pointer()] = cpy
		for i, value := range v {
			cpy[i] = deepCopy(value, visited)
		}
		return cpy

	case string, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8, float64, float32, bool, complex64, complex128:
		return v

	default:
		return reflectCopy(original, visited)
	}
}

// reflectCopy handles typed maps, typed slices, pointers, structs, and
// arrays, registering each container in visited before descending so nested
// cycles resolve to the copy under construction.
func reflectCopy(original reflect.Value, visited seen) interface{} {
	if !original.IsValid() {
		return nil
	}

	cpy := reflect.New(original.Type()).Elem()

	switch original.Kind() {
	case reflect.Ptr:
		if original.IsNil() {
			return nil
		}
		addr := original.Pointer()
		if existing, ok := visited[addr]; ok {
			return existing
		}
		newPtr := reflect.New(original.Type().Elem())
		visited[addr] = newPtr.Interface()
		if elem := deepCopy(original.Elem().Interface(), visited); elem != nil {
			newPtr.Elem().Set(reflect.ValueOf(elem))
		}
		return newPtr.Interface()

	case reflect.Interface:
		if original.IsNil() {
			return nil
		}
		return deepCopy(original.Elem().Interface(), visited)

	case reflect.Slice:
		if original.IsNil() {
			return nil
		}
		cpy.Set(reflect.MakeSlice(original.Type(), original.Len(), original.Cap()))
		visited[original.Pointer()] = cpy.Interface()
		for i := 0; i < original.Len(); i++ {
			cpy.Index(i).Set(reflect.ValueOf(deepCopy(original.Index(i).Interface(), visited)))
		}

	case reflect.Map:
		if original.IsNil() {
			return nil
		}
		cpy.Set(reflect.MakeMap(original.Type()))
		visited[original.Pointer()] = cpy.Interface()
		for _, key := range original.MapKeys() {
			copiedKey := deepCopy(key.Interface(), visited)
			copiedValue := deepCopy(original.MapIndex(key).Interface(), visited)
			cpy.SetMapIndex(reflect.ValueOf(copiedKey), reflect.ValueOf(copiedValue))
		}

	case reflect.Struct:
		for i := 0; i < original.NumField(); i++ {
			if !cpy.Field(i).CanSet() {
				continue
			}
			if fieldCopy := deepCopy(original.Field(i).Interface(), visited); fieldCopy != nil {
				cpy.Field(i).Set(reflect.ValueOf(fieldCopy))
			}
		}

	case reflect.Array:
		for i := 0; i < original.Len(); i++ {
			if elemCopy := deepCopy(original.Index(i).Interface(), visited); elemCopy != nil {
				cpy.Index(i).Set(reflect.ValueOf(elemCopy))
			}
		}

	default:
		cpy.Set(original)
	}

	return cpy.Interface()
}
