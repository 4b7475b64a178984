package value

// sliceBounds implements the shared slicing rule from spec §4.1:
//
//	slice(start)        -> [start, len)   (start negative counted from end)
//	slice(start, end)   -> [start, end)   half-open; end < start after
//	                       normalization is an error; out-of-range is an
//	                       error.
func sliceBounds(length int, args []Value, name string) (int, int, error) {
	if err := checkArityRange(name, args, 1, 2); err != nil {
		return 0, 0, err
	}
	start, err := normalizeIndex(args[0], length)
	if err != nil {
		return 0, 0, err
	}
	end := length
	if len(args) == 2 {
		e, err := normalizeIndex(args[1], length)
		if err != nil {
			return 0, 0, err
		}
		end = e
	}
	if start < 0 || start > length || end < 0 || end > length {
		return 0, 0, &OpError{Op: name, Message: "slice index out of range"}
	}
	if end < start {
		return 0, 0, &OpError{Op: name, Message: "slice end is before start"}
	}
	return start, end, nil
}

func normalizeIndex(v Value, length int) (int, error) {
	n := v.numeric()
	if !n.ok || n.isFloat {
		return 0, &OpError{Op: "slice", Message: "index must be an integer"}
	}
	i := int(n.i)
	if i < 0 {
		i += length
	}
	return i, nil
}
