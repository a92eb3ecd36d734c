// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package wire

import "testing"

func TestScalarRoundTrip(t *testing.T) {
	var b Buffer
	b.WriteInt(-12345)
	b.WriteUint(987654321)
	b.WriteBool(true)
	b.WriteBool(false)
	b.WriteFloat64(3.25)
	b.WriteString("row_group_index")
	b.WriteBlob([]byte{0xde, 0xad, 0xbe, 0xef})
	b.WriteSymbol(Symbol(7))

	msg := b.Bytes()

	i, msg, err := ReadInt(msg)
	if err != nil || i != -12345 {
		t.Fatalf("ReadInt: %v %d", err, i)
	}
	u, msg, err := ReadUint(msg)
	if err != nil || u != 987654321 {
		t.Fatalf("ReadUint: %v %d", err, u)
	}
	bl, msg, err := ReadBool(msg)
	if err != nil || bl != true {
		t.Fatalf("ReadBool: %v %v", err, bl)
	}
	bl, msg, err = ReadBool(msg)
	if err != nil || bl != false {
		t.Fatalf("ReadBool: %v %v", err, bl)
	}
	f, msg, err := ReadFloat64(msg)
	if err != nil || f != 3.25 {
		t.Fatalf("ReadFloat64: %v %f", err, f)
	}
	str, msg, err := ReadString(msg)
	if err != nil || str != "row_group_index" {
		t.Fatalf("ReadString: %v %q", err, str)
	}
	blob, msg, err := ReadBlob(msg)
	if err != nil || string(blob) != "\xde\xad\xbe\xef" {
		t.Fatalf("ReadBlob: %v %x", err, blob)
	}
	sym, msg, err := ReadSymbol(msg)
	if err != nil || sym != 7 {
		t.Fatalf("ReadSymbol: %v %d", err, sym)
	}
	if len(msg) != 0 {
		t.Fatalf("leftover bytes: %d", len(msg))
	}
}

func TestStructRoundTrip(t *testing.T) {
	var st Symtab
	name := st.Intern("name")
	count := st.Intern("count")
	nested := st.Intern("nested")

	var b Buffer
	b.BeginStruct()
	b.BeginField(name)
	b.WriteString("stripe-0")
	b.BeginField(count)
	b.WriteUint(42)
	b.BeginField(nested)
	b.BeginStruct()
	b.EndStruct()
	b.EndStruct()

	got := map[string]bool{}
	err := UnpackStruct(&st, b.Bytes(), func(fname string, field []byte) error {
		got[fname] = true
		switch fname {
		case "name":
			s, _, err := ReadString(field)
			if err != nil || s != "stripe-0" {
				t.Errorf("field name: %v %q", err, s)
			}
		case "count":
			v, _, err := ReadUint(field)
			if err != nil || v != 42 {
				t.Errorf("field count: %v %d", err, v)
			}
		case "nested":
			if TypeOf(field) != StructType {
				t.Errorf("field nested: want struct, got %s", TypeOf(field))
			}
		default:
			t.Errorf("unexpected field %q", fname)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"name", "count", "nested"} {
		if !got[want] {
			t.Errorf("missing field %q", want)
		}
	}
}

func TestListRoundTrip(t *testing.T) {
	var b Buffer
	b.BeginList()
	b.WriteInt(1)
	b.WriteInt(2)
	b.WriteInt(3)
	b.EndList()

	var vals []int64
	err := UnpackList(b.Bytes(), func(elem []byte) error {
		v, _, err := ReadInt(elem)
		if err != nil {
			return err
		}
		vals = append(vals, v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || vals[0] != 1 || vals[1] != 2 || vals[2] != 3 {
		t.Fatalf("got %v", vals)
	}
}

func TestSymtabMarshalRoundTrip(t *testing.T) {
	var st Symtab
	a := st.Intern("a")
	b := st.Intern("b")
	c := st.Intern("c")
	if a == b || b == c || a == c {
		t.Fatalf("expected distinct ids, got %d %d %d", a, b, c)
	}
	// interning an existing name returns the same id
	if st.Intern("b") != b {
		t.Fatalf("re-intern of existing name changed id")
	}

	var buf Buffer
	st.Marshal(&buf)

	var st2 Symtab
	if err := st2.Unmarshal(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if !st.Equal(&st2) {
		t.Fatalf("round-tripped table differs: %v vs %v", st.Names(), st2.Names())
	}
}

func TestNestedStructsAndLists(t *testing.T) {
	var st Symtab
	streams := st.Intern("streams")
	kind := st.Intern("kind")
	length := st.Intern("length")

	var b Buffer
	b.BeginStruct()
	b.BeginField(streams)
	b.BeginList()
	for i := 0; i < 3; i++ {
		b.BeginStruct()
		b.BeginField(kind)
		b.WriteUint(uint64(i))
		b.BeginField(length)
		b.WriteUint(uint64(i * 100))
		b.EndStruct()
	}
	b.EndList()
	b.EndStruct()

	var count int
	err := UnpackStruct(&st, b.Bytes(), func(fname string, field []byte) error {
		if fname != "streams" {
			t.Fatalf("unexpected top field %q", fname)
		}
		return UnpackList(field, func(elem []byte) error {
			idx := count
			count++
			return UnpackStruct(&st, elem, func(fname string, field []byte) error {
				switch fname {
				case "kind":
					v, _, err := ReadUint(field)
					if err != nil || v != uint64(idx) {
						t.Errorf("kind mismatch at %d: %v %d", idx, err, v)
					}
				case "length":
					v, _, err := ReadUint(field)
					if err != nil || v != uint64(idx*100) {
						t.Errorf("length mismatch at %d: %v %d", idx, err, v)
					}
				}
				return nil
			})
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 stream structs, got %d", count)
	}
}

func TestTypeOfAndSizeOf(t *testing.T) {
	var b Buffer
	b.WriteString("hello")
	msg := b.Bytes()
	if got := TypeOf(msg); got != StringType {
		t.Fatalf("TypeOf: got %s", got)
	}
	n := SizeOf(msg)
	if n != len(msg) {
		t.Fatalf("SizeOf: got %d, want %d", n, len(msg))
	}
}

func TestMismatchedEndPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched End")
		}
	}()
	var b Buffer
	b.BeginStruct()
	b.EndList()
}

func TestReadWrongType(t *testing.T) {
	var b Buffer
	b.WriteInt(1)
	if _, _, err := ReadString(b.Bytes()); err == nil {
		t.Fatal("expected type error")
	}
}
