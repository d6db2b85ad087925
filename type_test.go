package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeOfPrimitives(t *testing.T) {
	require.Equal(t, 1, SizeOf(TyCharType))
	require.Equal(t, 2, SizeOf(TyShortType))
	require.Equal(t, 4, SizeOf(TyIntType))
	require.Equal(t, 8, SizeOf(TyLongType))
	require.Equal(t, 4, SizeOf(TyFloatType))
	require.Equal(t, 8, SizeOf(TyDoubleType))
}

func TestAlignTo(t *testing.T) {
	require.Equal(t, 8, AlignTo(1, 8))
	require.Equal(t, 8, AlignTo(8, 8))
	require.Equal(t, 16, AlignTo(9, 8))
	require.Equal(t, 0, AlignTo(0, 8))
}

func TestPointerToAndArrayOf(t *testing.T) {
	p := PointerTo(TyIntType)
	require.Equal(t, TyPtr, p.Kind)
	require.Equal(t, 8, p.Size)
	require.True(t, p.Unsigned)

	arr := ArrayOf(TyIntType, 3)
	require.Equal(t, TyArray, arr.Kind)
	require.Equal(t, 12, arr.Size)
	require.Equal(t, 3, arr.ArrayLen)
}

func TestIsPointerLike(t *testing.T) {
	require.True(t, PointerTo(TyIntType).IsPointerLike())
	require.True(t, ArrayOf(TyIntType, 3).IsPointerLike())
	require.False(t, TyIntType.IsPointerLike())
}

func TestCommonTypeIntPromotion(t *testing.T) {
	require.Equal(t, TyIntType, commonType(TyCharType, TyShortType))
}

func TestCommonTypeWidensToLong(t *testing.T) {
	require.Equal(t, TyLongType, commonType(TyIntType, TyLongType))
}

func TestCommonTypeFloatBeatsInt(t *testing.T) {
	require.Equal(t, TyFloatType, commonType(TyIntType, TyFloatType))
}

func TestCommonTypeDoubleBeatsFloat(t *testing.T) {
	require.Equal(t, TyDoubleType, commonType(TyFloatType, TyDoubleType))
}

func TestCommonTypeSameSizeUnsignedWins(t *testing.T) {
	require.Equal(t, TyUlongType, commonType(TyLongType, TyUlongType))
}

func TestSizeOfIncompleteTypePanics(t *testing.T) {
	incomplete := StructType()
	require.Panics(t, func() { SizeOf(incomplete) })
}
