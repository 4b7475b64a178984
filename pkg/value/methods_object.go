package value

func init() {
	register(Object, table{
		"length":   {Read, objectLength},
		"is_empty": {Read, objectIsEmpty},
		"keys":     {Read, objectKeys},
		"values":   {Read, objectValues},
		"contains": {Read, objectContains},
		"get":      {Read, objectGet},
		"insert":   {Write, objectInsert},
		"remove":   {Write, objectRemove},
		"clear":    {Write, objectClear},
		"clone":    {Read, objectClone},
	})
}

func objectLength(recv *Value, args []Value) (Value, error) {
	if err := checkArity("length", args, 0); err != nil {
		return Value{}, err
	}
	return NewInt(int64(recv.ObjectLen())), nil
}

func objectIsEmpty(recv *Value, args []Value) (Value, error) {
	if err := checkArity("is_empty", args, 0); err != nil {
		return Value{}, err
	}
	return NewBool(recv.ObjectLen() == 0), nil
}

func objectKeys(recv *Value, args []Value) (Value, error) {
	if err := checkArity("keys", args, 0); err != nil {
		return Value{}, err
	}
	keys := recv.ObjectKeys()
	items := make([]Value, len(keys))
	for i, k := range keys {
		items[i] = NewString(k)
	}
	return NewArray(items), nil
}

func objectValues(recv *Value, args []Value) (Value, error) {
	if err := checkArity("values", args, 0); err != nil {
		return Value{}, err
	}
	keys := recv.ObjectKeys()
	items := make([]Value, len(keys))
	for i, k := range keys {
		items[i], _ = recv.ObjectGet(k)
	}
	return NewArray(items), nil
}

func objectContains(recv *Value, args []Value) (Value, error) {
	if err := checkArity("contains", args, 1); err != nil {
		return Value{}, err
	}
	_, ok := recv.ObjectGet(args[0].String())
	return NewBool(ok), nil
}

func objectGet(recv *Value, args []Value) (Value, error) {
	if err := checkArity("get", args, 1); err != nil {
		return Value{}, err
	}
	v, ok := recv.ObjectGet(args[0].String())
	if !ok {
		return NewNull(), nil
	}
	return v, nil
}

func objectInsert(recv *Value, args []Value) (Value, error) {
	if err := checkArity("insert", args, 2); err != nil {
		return Value{}, err
	}
	return recv.WithObjectSet(args[0].String(), args[1]), nil
}

func objectRemove(recv *Value, args []Value) (Value, error) {
	if err := checkArity("remove", args, 1); err != nil {
		return Value{}, err
	}
	out, _ := recv.WithObjectRemove(args[0].String())
	return out, nil
}

func objectClear(recv *Value, args []Value) (Value, error) {
	if err := checkArity("clear", args, 0); err != nil {
		return Value{}, err
	}
	return NewEmptyObject(), nil
}

func objectClone(recv *Value, args []Value) (Value, error) {
	if err := checkArity("clone", args, 0); err != nil {
		return Value{}, err
	}
	return recv.Clone(), nil
}
