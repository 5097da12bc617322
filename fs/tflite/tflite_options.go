// tflite_options.go - BuiltinOptions Union und Feld-Schema
//
// Die Optionen eines Operators sind eine Union ueber viele kleine Tabellen.
// Statt je Tabelle einen eigenen Go-Typ zu generieren, beschreibt
// optionsSchema die Felder jeder Tabelle (Slot-Reihenfolge, Typ, Default).
// Dekodierte Werte liegen in einer OptionsKV-Map nach Feldnamen.
package tflite

import "fmt"

// OptionsType ist der Diskriminator der BuiltinOptions-Union
type OptionsType uint8

const (
	OptionsNone                       OptionsType = 0
	OptionsConv2D                     OptionsType = 1
	OptionsDepthwiseConv2D            OptionsType = 2
	OptionsConcatEmbeddings           OptionsType = 3
	OptionsLSHProjection              OptionsType = 4
	OptionsPool2D                     OptionsType = 5
	OptionsSVDF                       OptionsType = 6
	OptionsRNN                        OptionsType = 7
	OptionsFullyConnected             OptionsType = 8
	OptionsSoftmax                    OptionsType = 9
	OptionsConcatenation              OptionsType = 10
	OptionsAdd                        OptionsType = 11
	OptionsL2Norm                     OptionsType = 12
	OptionsLocalResponseNormalization OptionsType = 13
	OptionsLSTM                       OptionsType = 14
	OptionsResizeBilinear             OptionsType = 15
	OptionsCall                       OptionsType = 16
	OptionsReshape                    OptionsType = 17
	OptionsSkipGram                   OptionsType = 18
	OptionsSpaceToDepth               OptionsType = 19
	OptionsEmbeddingLookupSparse      OptionsType = 20
	OptionsMul                        OptionsType = 21
	OptionsPad                        OptionsType = 22
	OptionsGather                     OptionsType = 23
	OptionsBatchToSpaceND             OptionsType = 24
	OptionsSpaceToBatchND             OptionsType = 25
	OptionsTranspose                  OptionsType = 26
	OptionsReducer                    OptionsType = 27
	OptionsSub                        OptionsType = 28
	OptionsDiv                        OptionsType = 29
	OptionsSqueeze                    OptionsType = 30
	OptionsSequenceRNN                OptionsType = 31
	OptionsStridedSlice               OptionsType = 32
	OptionsExp                        OptionsType = 33
	OptionsTopKV2                     OptionsType = 34
	OptionsSplit                      OptionsType = 35
	OptionsLogSoftmax                 OptionsType = 36
	OptionsCast                       OptionsType = 37
	OptionsDequantize                 OptionsType = 38
	OptionsMaximumMinimum             OptionsType = 39
	OptionsArgMax                     OptionsType = 40
	OptionsLess                       OptionsType = 41
	OptionsNeg                        OptionsType = 42
	OptionsPadV2                      OptionsType = 43
	OptionsGreater                    OptionsType = 44
	OptionsGreaterEqual               OptionsType = 45
	OptionsLessEqual                  OptionsType = 46
	OptionsSelect                     OptionsType = 47
	OptionsSlice                      OptionsType = 48
	OptionsTransposeConv              OptionsType = 49
	OptionsSparseToDense              OptionsType = 50
	OptionsTile                       OptionsType = 51
	OptionsExpandDims                 OptionsType = 52
	OptionsEqual                      OptionsType = 53
	OptionsNotEqual                   OptionsType = 54
	OptionsShape                      OptionsType = 55
	OptionsPow                        OptionsType = 56
	OptionsArgMin                     OptionsType = 57
	OptionsFakeQuant                  OptionsType = 58
	OptionsPack                       OptionsType = 59
	OptionsLogicalOr                  OptionsType = 60
	OptionsOneHot                     OptionsType = 61
	OptionsLogicalAnd                 OptionsType = 62
	OptionsLogicalNot                 OptionsType = 63
	OptionsUnpack                     OptionsType = 64
	OptionsFloorDiv                   OptionsType = 65
	OptionsSquare                     OptionsType = 66
	OptionsZerosLike                  OptionsType = 67
	OptionsFill                       OptionsType = 68
	OptionsBidirectionalSequenceLSTM  OptionsType = 69
	OptionsBidirectionalSequenceRNN   OptionsType = 70
	OptionsUnidirectionalSequenceLSTM OptionsType = 71
	OptionsFloorMod                   OptionsType = 72
	OptionsRange                      OptionsType = 73
	OptionsResizeNearestNeighbor      OptionsType = 74
	OptionsLeakyRelu                  OptionsType = 75
	OptionsSquaredDifference          OptionsType = 76
	OptionsMirrorPad                  OptionsType = 77
	OptionsAbs                        OptionsType = 78
	OptionsSplitV                     OptionsType = 79
	OptionsUnique                     OptionsType = 80
	OptionsReverseV2                  OptionsType = 81
	OptionsAddN                       OptionsType = 82
	OptionsGatherNd                   OptionsType = 83
	OptionsCos                        OptionsType = 84
	OptionsWhere                      OptionsType = 85
	OptionsRank                       OptionsType = 86
	OptionsReverseSequence            OptionsType = 87
	OptionsMatrixDiag                 OptionsType = 88
	OptionsQuantize                   OptionsType = 89
	OptionsMatrixSetDiag              OptionsType = 90
	OptionsHardSwish                  OptionsType = 91
	OptionsIf                         OptionsType = 92
	OptionsWhile                      OptionsType = 93
	OptionsDepthToSpace               OptionsType = 94
	OptionsNonMaxSuppressionV4        OptionsType = 95
	OptionsNonMaxSuppressionV5        OptionsType = 96
	OptionsScatterNd                  OptionsType = 97
	OptionsSelectV2                   OptionsType = 98
	OptionsDensify                    OptionsType = 99
	OptionsSegmentSum                 OptionsType = 100
	OptionsBatchMatMul                OptionsType = 101
	OptionsCumsum                     OptionsType = 102
	OptionsCallOnce                   OptionsType = 103
	OptionsBroadcastTo                OptionsType = 104
	OptionsRfft2d                     OptionsType = 105
	OptionsConv3D                     OptionsType = 106
	OptionsHashtable                  OptionsType = 107
	OptionsHashtableFind              OptionsType = 108
	OptionsHashtableImport            OptionsType = 109
	OptionsHashtableSize              OptionsType = 110
	OptionsVarHandle                  OptionsType = 111
	OptionsReadVariable               OptionsType = 112
	OptionsAssignVariable             OptionsType = 113
	OptionsRandom                     OptionsType = 114
	OptionsBucketize                  OptionsType = 115
	OptionsGelu                       OptionsType = 116
	OptionsDynamicUpdateSlice         OptionsType = 117
	OptionsUnsortedSegmentProd        OptionsType = 118
	OptionsUnsortedSegmentMax         OptionsType = 119
	OptionsUnsortedSegmentMin         OptionsType = 120
	OptionsUnsortedSegmentSum         OptionsType = 121
	OptionsATan2                      OptionsType = 122
	OptionsSign                       OptionsType = 123
	OptionsBitcast                    OptionsType = 124
	OptionsBitwiseXor                 OptionsType = 125
	OptionsRightShift                 OptionsType = 126
)

type fieldKind int

const (
	fieldBool fieldKind = iota
	fieldInt8
	fieldInt32
	fieldFloat32
	fieldUint32
	fieldInt64
	fieldString
	fieldInt32s
	fieldFloat32s
)

type optionField struct {
	name string
	kind fieldKind
	def  any
}

// Slot i einer Tabelle entspricht dem i-ten Eintrag. Veraltete Felder bleiben
// stehen, damit die Slots stimmen.
var (
	fusedActivation = optionField{"fused_activation_function", fieldInt8, int8(0)}
	padding         = optionField{"padding", fieldInt8, int8(0)}
	strideW         = optionField{"stride_w", fieldInt32, int32(0)}
	strideH         = optionField{"stride_h", fieldInt32, int32(0)}
	quantBiasType   = optionField{"quantized_bias_type", fieldInt8, int8(0)}
	alignCorners    = optionField{"align_corners", fieldBool, false}
	halfPixel       = optionField{"half_pixel_centers", fieldBool, false}
	potScaleInt16   = optionField{"pot_scale_int16", fieldBool, true}

	asymmetricQuantize = optionField{"asymmetric_quantize_inputs", fieldBool, false}
	cellClip           = optionField{"cell_clip", fieldFloat32, float32(0)}
	projClip           = optionField{"proj_clip", fieldFloat32, float32(0)}
	timeMajor          = optionField{"time_major", fieldBool, false}
	mergeOutputs       = optionField{"merge_outputs", fieldBool, false}
)

var optionsSchema = map[OptionsType][]optionField{
	OptionsConv2D: {
		padding, strideW, strideH, fusedActivation,
		{"dilation_w_factor", fieldInt32, int32(1)},
		{"dilation_h_factor", fieldInt32, int32(1)},
		quantBiasType,
	},
	OptionsDepthwiseConv2D: {
		padding, strideW, strideH,
		{"depth_multiplier", fieldInt32, int32(0)},
		fusedActivation,
		{"dilation_w_factor", fieldInt32, int32(1)},
		{"dilation_h_factor", fieldInt32, int32(1)},
	},
	OptionsPool2D: {
		padding, strideW, strideH,
		{"filter_width", fieldInt32, int32(0)},
		{"filter_height", fieldInt32, int32(0)},
		fusedActivation,
	},
	OptionsFullyConnected: {
		fusedActivation,
		{"weights_format", fieldInt8, int8(0)},
		{"keep_num_dims", fieldBool, false},
		asymmetricQuantize,
		quantBiasType,
	},
	OptionsSoftmax:        {{"beta", fieldFloat32, float32(0)}},
	OptionsConcatenation:  {{"axis", fieldInt32, int32(0)}, fusedActivation},
	OptionsAdd:            {fusedActivation, potScaleInt16},
	OptionsL2Norm:         {fusedActivation},
	OptionsResizeBilinear: {{"new_height", fieldInt32, int32(0)}, {"new_width", fieldInt32, int32(0)}, alignCorners, halfPixel},
	OptionsReshape:        {{"new_shape", fieldInt32s, nil}},
	OptionsSpaceToDepth:   {{"block_size", fieldInt32, int32(0)}},
	OptionsMul:            {fusedActivation},
	OptionsPad:            {},
	OptionsGather:         {{"axis", fieldInt32, int32(0)}, {"batch_dims", fieldInt32, int32(0)}},
	OptionsBatchToSpaceND: {},
	OptionsSpaceToBatchND: {},
	OptionsTranspose:      {},
	OptionsReducer:        {{"keep_dims", fieldBool, false}},
	OptionsSub:            {fusedActivation, potScaleInt16},
	OptionsDiv:            {fusedActivation},
	OptionsSqueeze:        {{"squeeze_dims", fieldInt32s, nil}},
	OptionsStridedSlice: {
		{"begin_mask", fieldInt32, int32(0)},
		{"end_mask", fieldInt32, int32(0)},
		{"ellipsis_mask", fieldInt32, int32(0)},
		{"new_axis_mask", fieldInt32, int32(0)},
		{"shrink_axis_mask", fieldInt32, int32(0)},
		{"offset", fieldBool, false},
	},
	OptionsExp:                   {},
	OptionsTopKV2:                {},
	OptionsSplit:                 {{"num_splits", fieldInt32, int32(0)}},
	OptionsLogSoftmax:            {},
	OptionsCast:                  {{"in_data_type", fieldInt8, int8(0)}, {"out_data_type", fieldInt8, int8(0)}},
	OptionsDequantize:            {},
	OptionsMaximumMinimum:        {},
	OptionsArgMax:                {{"output_type", fieldInt8, int8(0)}},
	OptionsLess:                  {},
	OptionsNeg:                   {},
	OptionsPadV2:                 {},
	OptionsGreater:               {},
	OptionsGreaterEqual:          {},
	OptionsLessEqual:             {},
	OptionsSelect:                {},
	OptionsSlice:                 {},
	OptionsTransposeConv:         {padding, strideW, strideH, fusedActivation, quantBiasType},
	OptionsTile:                  {},
	OptionsExpandDims:            {},
	OptionsEqual:                 {},
	OptionsNotEqual:              {},
	OptionsShape:                 {{"out_type", fieldInt8, int8(0)}},
	OptionsPow:                   {},
	OptionsArgMin:                {{"output_type", fieldInt8, int8(0)}},
	OptionsPack:                  {{"values_count", fieldInt32, int32(0)}, {"axis", fieldInt32, int32(0)}},
	OptionsUnpack:                {{"num", fieldInt32, int32(0)}, {"axis", fieldInt32, int32(0)}},
	OptionsFloorDiv:              {},
	OptionsSquare:                {},
	OptionsZerosLike:             {},
	OptionsFill:                  {},
	OptionsFloorMod:              {},
	OptionsRange:                 {},
	OptionsResizeNearestNeighbor: {alignCorners, halfPixel},
	OptionsLeakyRelu:             {{"alpha", fieldFloat32, float32(0)}},
	OptionsSquaredDifference:     {},
	OptionsMirrorPad:             {{"mode", fieldInt8, int8(0)}},
	OptionsAbs:                   {},
	OptionsSplitV:                {{"num_splits", fieldInt32, int32(0)}},
	OptionsAddN:                  {},
	OptionsGatherNd:              {},
	OptionsCos:                   {},
	OptionsWhere:                 {},
	OptionsRank:                  {},
	OptionsQuantize:              {},
	OptionsHardSwish:             {},
	OptionsIf:                    {{"then_subgraph_index", fieldInt32, int32(0)}, {"else_subgraph_index", fieldInt32, int32(0)}},
	OptionsWhile:                 {{"cond_subgraph_index", fieldInt32, int32(0)}, {"body_subgraph_index", fieldInt32, int32(0)}},
	OptionsDepthToSpace:          {{"block_size", fieldInt32, int32(0)}},
	OptionsScatterNd:             {},
	OptionsSelectV2:              {},
	OptionsBatchMatMul: {
		{"adj_x", fieldBool, false},
		{"adj_y", fieldBool, false},
		asymmetricQuantize,
	},
	OptionsConcatEmbeddings: {
		{"num_channels", fieldInt32, int32(0)},
		{"num_columns_per_channel", fieldInt32s, nil},
		{"embedding_dim_per_channel", fieldInt32s, nil},
	},
	OptionsLSHProjection:              {{"type", fieldInt8, int8(0)}},
	OptionsSVDF:                       {{"rank", fieldInt32, int32(0)}, fusedActivation, asymmetricQuantize},
	OptionsRNN:                        {fusedActivation, asymmetricQuantize},
	OptionsLocalResponseNormalization: {{"radius", fieldInt32, int32(0)}, {"bias", fieldFloat32, float32(0)}, {"alpha", fieldFloat32, float32(0)}, {"beta", fieldFloat32, float32(0)}},
	OptionsLSTM:                       {fusedActivation, cellClip, projClip, {"kernel_type", fieldInt8, int8(0)}, asymmetricQuantize},
	OptionsCall:                       {{"subgraph", fieldUint32, uint32(0)}},
	OptionsSkipGram:                   {{"ngram_size", fieldInt32, int32(0)}, {"max_skip_size", fieldInt32, int32(0)}, {"include_all_ngrams", fieldBool, false}},
	OptionsEmbeddingLookupSparse:      {{"combiner", fieldInt8, int8(0)}},
	OptionsSequenceRNN:                {timeMajor, fusedActivation, asymmetricQuantize},
	OptionsSparseToDense:              {{"validate_indices", fieldBool, false}},
	OptionsFakeQuant:                  {{"min", fieldFloat32, float32(0)}, {"max", fieldFloat32, float32(0)}, {"num_bits", fieldInt32, int32(0)}, {"narrow_range", fieldBool, false}},
	OptionsLogicalOr:                  {},
	OptionsOneHot:                     {{"axis", fieldInt32, int32(0)}},
	OptionsLogicalAnd:                 {},
	OptionsLogicalNot:                 {},
	OptionsBidirectionalSequenceLSTM: {
		fusedActivation, cellClip, projClip, mergeOutputs,
		{"time_major", fieldBool, true},
		asymmetricQuantize,
	},
	OptionsBidirectionalSequenceRNN: {timeMajor, fusedActivation, mergeOutputs, asymmetricQuantize},
	OptionsUnidirectionalSequenceLSTM: {
		fusedActivation, cellClip, projClip, timeMajor, asymmetricQuantize,
		{"diagonal_recurrent_tensors", fieldBool, false},
	},
	OptionsUnique:              {{"idx_out_type", fieldInt8, int8(TensorTypeInt32)}},
	OptionsReverseV2:           {},
	OptionsReverseSequence:     {{"seq_dim", fieldInt32, int32(0)}, {"batch_dim", fieldInt32, int32(0)}},
	OptionsMatrixDiag:          {},
	OptionsMatrixSetDiag:       {},
	OptionsNonMaxSuppressionV4: {},
	OptionsNonMaxSuppressionV5: {},
	OptionsDensify:             {},
	OptionsSegmentSum:          {},
	OptionsCumsum:              {{"exclusive", fieldBool, false}, {"reverse", fieldBool, false}},
	OptionsCallOnce:            {{"init_subgraph_index", fieldInt32, int32(0)}},
	OptionsBroadcastTo:         {},
	OptionsRfft2d:              {},
	OptionsConv3D: {
		padding,
		{"stride_d", fieldInt32, int32(0)},
		strideW, strideH, fusedActivation,
		{"dilation_d_factor", fieldInt32, int32(1)},
		{"dilation_w_factor", fieldInt32, int32(1)},
		{"dilation_h_factor", fieldInt32, int32(1)},
	},
	OptionsHashtable:           {{"table_id", fieldInt32, int32(0)}, {"key_dtype", fieldInt8, int8(0)}, {"value_dtype", fieldInt8, int8(0)}},
	OptionsHashtableFind:       {},
	OptionsHashtableImport:     {},
	OptionsHashtableSize:       {},
	OptionsVarHandle:           {{"container", fieldString, nil}, {"shared_name", fieldString, nil}},
	OptionsReadVariable:        {},
	OptionsAssignVariable:      {},
	OptionsRandom:              {{"seed", fieldInt64, int64(0)}, {"seed2", fieldInt64, int64(0)}},
	OptionsBucketize:           {{"boundaries", fieldFloat32s, nil}},
	OptionsGelu:                {{"approximate", fieldBool, false}},
	OptionsDynamicUpdateSlice:  {},
	OptionsUnsortedSegmentProd: {},
	OptionsUnsortedSegmentMax:  {},
	OptionsUnsortedSegmentMin:  {},
	OptionsUnsortedSegmentSum:  {},
	OptionsATan2:               {},
	OptionsSign:                {},
	OptionsBitcast:             {},
	OptionsBitwiseXor:          {},
	OptionsRightShift:          {},
}

// BuiltinOptions ist der dekodierte Wert der Options-Union eines Operators.
// Fuer Typen ohne Schema bleibt KV nil und Raw haelt die Felder der Tabelle.
type BuiltinOptions struct {
	Type OptionsType
	KV   OptionsKV
	Raw  []RawField
}

// RawField ist ein Feld einer Tabelle ohne Schema als 1, 2, 4 oder 8 Bytes
// ab Feldanfang. Eventuelles Padding am Ende ist Null. Nur Skalare ueberleben
// so eine Kopie, Offsets auf Vektoren oder Strings nicht.
type RawField struct {
	Slot int
	Data []byte
}

// NewBuiltinOptions erstellt Optionen mit allen Skalar-Feldern auf Default
func NewBuiltinOptions(t OptionsType) (*BuiltinOptions, error) {
	fields, ok := optionsSchema[t]
	if !ok {
		return nil, malformedf("builtin options type %d has no schema", t)
	}
	kv := make(OptionsKV, len(fields))
	for _, f := range fields {
		if f.def != nil {
			kv[f.name] = f.def
		}
	}
	return &BuiltinOptions{Type: t, KV: kv}, nil
}

// OptionsKV - Feldwerte einer Options-Tabelle nach Feldnamen
type OptionsKV map[string]any

// Int32 gibt einen int32-Wert zurueck
func (kv OptionsKV) Int32(key string) int32 {
	v, _ := kv[key].(int32)
	return v
}

// Int8 gibt einen int8-Wert (Enum) zurueck
func (kv OptionsKV) Int8(key string) int8 {
	v, _ := kv[key].(int8)
	return v
}

// Bool gibt einen bool-Wert zurueck
func (kv OptionsKV) Bool(key string) bool {
	v, _ := kv[key].(bool)
	return v
}

// Float32 gibt einen float32-Wert zurueck
func (kv OptionsKV) Float32(key string) float32 {
	v, _ := kv[key].(float32)
	return v
}

// Int32s gibt ein int32-Array zurueck, nil wenn das Feld fehlt
func (kv OptionsKV) Int32s(key string) []int32 {
	v, _ := kv[key].([]int32)
	return v
}

// checkValue prueft, ob v zum Feld-Typ passt
func (f optionField) checkValue(v any) error {
	var ok bool
	switch f.kind {
	case fieldBool:
		_, ok = v.(bool)
	case fieldInt8:
		_, ok = v.(int8)
	case fieldInt32:
		_, ok = v.(int32)
	case fieldFloat32:
		_, ok = v.(float32)
	case fieldUint32:
		_, ok = v.(uint32)
	case fieldInt64:
		_, ok = v.(int64)
	case fieldString:
		_, ok = v.(string)
	case fieldInt32s:
		_, ok = v.([]int32)
	case fieldFloat32s:
		_, ok = v.([]float32)
	}
	if !ok {
		return fmt.Errorf("improper type %T for option '%s'", v, f.name)
	}
	return nil
}
