package bridge

import (
	"context"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/hostbridge/internal/scripting"
	"github.com/joeycumines/hostbridge/internal/value"
)

func onLoop(t *testing.T, fn func(vm *goja.Runtime)) {
	t.Helper()
	rt, err := scripting.NewRuntime(context.Background())
	require.NoError(t, err)
	defer rt.Close()
	require.NoError(t, rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		fn(vm)
		return nil
	}))
}

func TestToValue(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		for _, tc := range []struct {
			code string
			want value.Value
		}{
			{`undefined`, value.Null()},
			{`null`, value.Null()},
			{`true`, value.Bool(true)},
			{`42`, value.Int(42)},
			{`-0.5`, value.Number(-0.5)},
			{`"héllo"`, value.String("héllo")},
			{`[]`, value.List()},
			{`[1, [2], undefined]`, value.List(value.Int(1), value.List(value.Int(2)), value.Null())},
			{`({})`, value.Map(nil)},
			{`({a: {b: "c"}})`, value.Map(value.NewObject().Set("a", value.Map(value.NewObject().Set("b", value.String("c")))))},
			{`(() => { const s = {v: 1}; return {a: s, b: s}; })()`, value.Map(value.NewObject().
				Set("a", value.Map(value.NewObject().Set("v", value.Int(1)))).
				Set("b", value.Map(value.NewObject().Set("v", value.Int(1)))))},
		} {
			v, err := vm.RunString(tc.code)
			require.NoError(t, err, tc.code)
			got, err := ToValue(vm, v)
			require.NoError(t, err, tc.code)
			assert.True(t, value.Equal(tc.want, got), "%s: got %s, want %s", tc.code, got, tc.want)
		}
	})
}

func TestToValue_KeyOrder(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		v, err := vm.RunString(`({zeta: 1, alpha: 2, mid: 3})`)
		require.NoError(t, err)
		got, err := ToValue(vm, v)
		require.NoError(t, err)
		obj, ok := got.AsObject()
		require.True(t, ok)
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())
	})
}

func TestToValue_Errors(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		for _, tc := range []struct {
			code string
			want string
		}{
			{`(function () {})`, "functions cannot be converted"},
			{`({a: [1, () => 2]})`, "a[1]: functions cannot be converted"},
			{`Symbol("s")`, "symbols cannot be converted"},
			{`(() => { const o = {}; o.self = o; return o; })()`, "self: cyclic reference"},
			{`(() => { const a = []; a.push({list: a}); return a; })()`, "[0].list: cyclic reference"},
			{`(() => { let o = {}; for (let i = 0; i < 200; i++) o = {o}; return o; })()`, "nesting exceeds 128 levels"},
		} {
			v, err := vm.RunString(tc.code)
			require.NoError(t, err, tc.code)
			_, err = ToValue(vm, v)
			assert.ErrorContains(t, err, tc.want, tc.code)
		}
	})
}

func TestToValue_ItemLimit(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		for _, tc := range []struct {
			code string
			want string
		}{
			{`({a: new Array(2e7)})`, "a: more than 100000 items"},
			{`new Array(2 ** 32 - 1)`, "more than 100000 items"},
			{`[new Array(60000), new Array(60000)]`, "[1]: more than 100000 items"},
			{`(() => { const o = {}; for (let i = 0; i <= 100000; i++) o["k" + i] = i; return o; })()`, "more than 100000 items"},
		} {
			v, err := vm.RunString(tc.code)
			require.NoError(t, err, tc.code)
			_, err = ToValue(vm, v)
			assert.ErrorContains(t, err, tc.want, tc.code)
		}

		v, err := vm.RunString(`[new Array(50000).fill(0), new Array(49998).fill(0)]`)
		require.NoError(t, err)
		got, err := ToValue(vm, v)
		require.NoError(t, err)
		items, _ := got.AsList()
		assert.Len(t, items, 2)
	})
}

func TestToValue_DepthLimitInclusive(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		code := strings.Repeat("[", MaxDepth) + strings.Repeat("]", MaxDepth)
		v, err := vm.RunString(code)
		require.NoError(t, err)
		_, err = ToValue(vm, v)
		assert.NoError(t, err)

		code = strings.Repeat("[", MaxDepth+1) + strings.Repeat("]", MaxDepth+1)
		v, err = vm.RunString(code)
		require.NoError(t, err)
		_, err = ToValue(vm, v)
		assert.Error(t, err)
	})
}

func TestFromValue_RoundTrip(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		const src = `{"b":1,"a":[1,2.5,"x",null,true],"n":{"z":{}}}`
		v, err := vm.RunString(`(` + src + `)`)
		require.NoError(t, err)
		sv, err := ToValue(vm, v)
		require.NoError(t, err)

		require.NoError(t, vm.Set("roundTripped", FromValue(vm, sv)))
		out, err := vm.RunString(`JSON.stringify(roundTripped)`)
		require.NoError(t, err)
		assert.Equal(t, src, out.String())

		back, err := ToValue(vm, FromValue(vm, sv))
		require.NoError(t, err)
		assert.True(t, value.Equal(sv, back))
	})
}

func TestFromValue_FreshObjects(t *testing.T) {
	onLoop(t, func(vm *goja.Runtime) {
		shared := value.Map(value.NewObject().Set("k", value.Int(1)))
		list := value.List(shared, shared)
		require.NoError(t, vm.Set("l", FromValue(vm, list)))
		same, err := vm.RunString(`l[0] === l[1]`)
		require.NoError(t, err)
		assert.False(t, same.ToBoolean())

		isArray, err := vm.RunString(`Array.isArray(l)`)
		require.NoError(t, err)
		assert.True(t, isArray.ToBoolean())
		assert.True(t, goja.IsNull(FromValue(vm, value.Null())))
	})
}
