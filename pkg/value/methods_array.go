package value

import "strings"

func init() {
	register(Array, table{
		"length":    {Read, arrayLength},
		"is_empty":  {Read, arrayIsEmpty},
		"push":      {Write, arrayPush},
		"pop":       {Write, arrayPop},
		"shift":     {Write, arrayShift},
		"unshift":   {Write, arrayUnshift},
		"insert_at": {Write, arrayInsertAt},
		"remove_at": {Write, arrayRemoveAt},
		"index_of":  {Read, arrayIndexOf},
		"find":      {Read, arrayFind},
		"join":      {Read, arrayJoin},
		"slice":     {Read, arraySlice},
		"reverse":   {Write, arrayReverse},
		"clone":     {Read, arrayClone},
	})
}

func arrayLength(recv *Value, args []Value) (Value, error) {
	if err := checkArity("length", args, 0); err != nil {
		return Value{}, err
	}
	return NewInt(int64(len(recv.arr))), nil
}

func arrayIsEmpty(recv *Value, args []Value) (Value, error) {
	if err := checkArity("is_empty", args, 0); err != nil {
		return Value{}, err
	}
	return NewBool(len(recv.arr) == 0), nil
}

func arrayPush(recv *Value, args []Value) (Value, error) {
	if err := checkArityRange("push", args, 1, 1<<30); err != nil {
		return Value{}, err
	}
	items := append(append([]Value(nil), recv.arr...), args...)
	return recv.WithArray(items), nil
}

func arrayPop(recv *Value, args []Value) (Value, error) {
	if err := checkArity("pop", args, 0); err != nil {
		return Value{}, err
	}
	if len(recv.arr) == 0 {
		return Value{}, &OpError{Op: "pop", Message: "array is empty"}
	}
	items := append([]Value(nil), recv.arr[:len(recv.arr)-1]...)
	return recv.WithArray(items), nil
}

func arrayShift(recv *Value, args []Value) (Value, error) {
	if err := checkArity("shift", args, 0); err != nil {
		return Value{}, err
	}
	if len(recv.arr) == 0 {
		return Value{}, &OpError{Op: "shift", Message: "array is empty"}
	}
	items := append([]Value(nil), recv.arr[1:]...)
	return recv.WithArray(items), nil
}

func arrayUnshift(recv *Value, args []Value) (Value, error) {
	if err := checkArityRange("unshift", args, 1, 1<<30); err != nil {
		return Value{}, err
	}
	items := append(append([]Value(nil), args...), recv.arr...)
	return recv.WithArray(items), nil
}

func arrayInsertAt(recv *Value, args []Value) (Value, error) {
	if err := checkArity("insert_at", args, 2); err != nil {
		return Value{}, err
	}
	idx, err := normalizeIndex(args[0], len(recv.arr))
	if err != nil {
		return Value{}, err
	}
	if idx < 0 || idx > len(recv.arr) {
		return Value{}, &OpError{Op: "insert_at", Message: "index out of range"}
	}
	items := make([]Value, 0, len(recv.arr)+1)
	items = append(items, recv.arr[:idx]...)
	items = append(items, args[1])
	items = append(items, recv.arr[idx:]...)
	return recv.WithArray(items), nil
}

func arrayRemoveAt(recv *Value, args []Value) (Value, error) {
	if err := checkArity("remove_at", args, 1); err != nil {
		return Value{}, err
	}
	idx, err := normalizeIndex(args[0], len(recv.arr))
	if err != nil {
		return Value{}, err
	}
	if idx < 0 || idx >= len(recv.arr) {
		return Value{}, &OpError{Op: "remove_at", Message: "index out of range"}
	}
	items := make([]Value, 0, len(recv.arr)-1)
	items = append(items, recv.arr[:idx]...)
	items = append(items, recv.arr[idx+1:]...)
	return recv.WithArray(items), nil
}

func arrayIndexOf(recv *Value, args []Value) (Value, error) {
	if err := checkArity("index_of", args, 1); err != nil {
		return Value{}, err
	}
	for i, item := range recv.arr {
		if item.Equal(args[0]) {
			return NewInt(int64(i)), nil
		}
	}
	return NewInt(-1), nil
}

func arrayFind(recv *Value, args []Value) (Value, error) {
	if err := checkArity("find", args, 1); err != nil {
		return Value{}, err
	}
	for _, item := range recv.arr {
		if item.Equal(args[0]) {
			return item, nil
		}
	}
	return NewNull(), nil
}

func arrayJoin(recv *Value, args []Value) (Value, error) {
	if err := checkArity("join", args, 1); err != nil {
		return Value{}, err
	}
	sep := args[0].String()
	parts := make([]string, len(recv.arr))
	for i, item := range recv.arr {
		parts[i] = item.String()
	}
	return NewString(strings.Join(parts, sep)), nil
}

func arraySlice(recv *Value, args []Value) (Value, error) {
	start, end, err := sliceBounds(len(recv.arr), args, "slice")
	if err != nil {
		return Value{}, err
	}
	items := append([]Value(nil), recv.arr[start:end]...)
	return NewArray(items), nil
}

func arrayReverse(recv *Value, args []Value) (Value, error) {
	if err := checkArity("reverse", args, 0); err != nil {
		return Value{}, err
	}
	items := make([]Value, len(recv.arr))
	for i, item := range recv.arr {
		items[len(recv.arr)-1-i] = item
	}
	return recv.WithArray(items), nil
}

func arrayClone(recv *Value, args []Value) (Value, error) {
	if err := checkArity("clone", args, 0); err != nil {
		return Value{}, err
	}
	return recv.Clone(), nil
}
