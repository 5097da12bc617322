// operator.go - BuiltinOperator Enumeration des TFLite-Schemas
// Enthaelt: BuiltinOperator Konstanten und String-Namen

package tflite

import (
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// BuiltinOperator identifiziert eine eingebaute Operator-Art
type BuiltinOperator int32

const (
	OpAdd                        BuiltinOperator = 0
	OpAveragePool2D              BuiltinOperator = 1
	OpConcatenation              BuiltinOperator = 2
	OpConv2D                     BuiltinOperator = 3
	OpDepthwiseConv2D            BuiltinOperator = 4
	OpDepthToSpace               BuiltinOperator = 5
	OpDequantize                 BuiltinOperator = 6
	OpEmbeddingLookup            BuiltinOperator = 7
	OpFloor                      BuiltinOperator = 8
	OpFullyConnected             BuiltinOperator = 9
	OpHashtableLookup            BuiltinOperator = 10
	OpL2Normalization            BuiltinOperator = 11
	OpL2Pool2D                   BuiltinOperator = 12
	OpLocalResponseNormalization BuiltinOperator = 13
	OpLogistic                   BuiltinOperator = 14
	OpLshProjection              BuiltinOperator = 15
	OpLstm                       BuiltinOperator = 16
	OpMaxPool2D                  BuiltinOperator = 17
	OpMul                        BuiltinOperator = 18
	OpRelu                       BuiltinOperator = 19
	OpReluN1To1                  BuiltinOperator = 20
	OpRelu6                      BuiltinOperator = 21
	OpReshape                    BuiltinOperator = 22
	OpResizeBilinear             BuiltinOperator = 23
	OpRnn                        BuiltinOperator = 24
	OpSoftmax                    BuiltinOperator = 25
	OpSpaceToDepth               BuiltinOperator = 26
	OpSvdf                       BuiltinOperator = 27
	OpTanh                       BuiltinOperator = 28
	OpConcatEmbeddings           BuiltinOperator = 29
	OpSkipGram                   BuiltinOperator = 30
	OpCall                       BuiltinOperator = 31
	OpCustom                     BuiltinOperator = 32
	OpEmbeddingLookupSparse      BuiltinOperator = 33
	OpPad                        BuiltinOperator = 34
	OpUnidirectionalSequenceRnn  BuiltinOperator = 35
	OpGather                     BuiltinOperator = 36
	OpBatchToSpaceND             BuiltinOperator = 37
	OpSpaceToBatchND             BuiltinOperator = 38
	OpTranspose                  BuiltinOperator = 39
	OpMean                       BuiltinOperator = 40
	OpSub                        BuiltinOperator = 41
	OpDiv                        BuiltinOperator = 42
	OpSqueeze                    BuiltinOperator = 43
	OpUnidirectionalSequenceLstm BuiltinOperator = 44
	OpStridedSlice               BuiltinOperator = 45
	OpBidirectionalSequenceRnn   BuiltinOperator = 46
	OpExp                        BuiltinOperator = 47
	OpTopkV2                     BuiltinOperator = 48
	OpSplit                      BuiltinOperator = 49
	OpLogSoftmax                 BuiltinOperator = 50
	OpDelegate                   BuiltinOperator = 51
	OpBidirectionalSequenceLstm  BuiltinOperator = 52
	OpCast                       BuiltinOperator = 53
	OpPrelu                      BuiltinOperator = 54
	OpMaximum                    BuiltinOperator = 55
	OpArgMax                     BuiltinOperator = 56
	OpMinimum                    BuiltinOperator = 57
	OpLess                       BuiltinOperator = 58
	OpNeg                        BuiltinOperator = 59
	OpPadv2                      BuiltinOperator = 60
	OpGreater                    BuiltinOperator = 61
	OpGreaterEqual               BuiltinOperator = 62
	OpLessEqual                  BuiltinOperator = 63
	OpSelect                     BuiltinOperator = 64
	OpSlice                      BuiltinOperator = 65
	OpSin                        BuiltinOperator = 66
	OpTransposeConv              BuiltinOperator = 67
	OpSparseToDense              BuiltinOperator = 68
	OpTile                       BuiltinOperator = 69
	OpExpandDims                 BuiltinOperator = 70
	OpEqual                      BuiltinOperator = 71
	OpNotEqual                   BuiltinOperator = 72
	OpLog                        BuiltinOperator = 73
	OpSum                        BuiltinOperator = 74
	OpSqrt                       BuiltinOperator = 75
	OpRsqrt                      BuiltinOperator = 76
	OpShape                      BuiltinOperator = 77
	OpPow                        BuiltinOperator = 78
	OpArgMin                     BuiltinOperator = 79
	OpFakeQuant                  BuiltinOperator = 80
	OpReduceProd                 BuiltinOperator = 81
	OpReduceMax                  BuiltinOperator = 82
	OpPack                       BuiltinOperator = 83
	OpLogicalOr                  BuiltinOperator = 84
	OpOneHot                     BuiltinOperator = 85
	OpLogicalAnd                 BuiltinOperator = 86
	OpLogicalNot                 BuiltinOperator = 87
	OpUnpack                     BuiltinOperator = 88
	OpReduceMin                  BuiltinOperator = 89
	OpFloorDiv                   BuiltinOperator = 90
	OpReduceAny                  BuiltinOperator = 91
	OpSquare                     BuiltinOperator = 92
	OpZerosLike                  BuiltinOperator = 93
	OpFill                       BuiltinOperator = 94
	OpFloorMod                   BuiltinOperator = 95
	OpRange                      BuiltinOperator = 96
	OpResizeNearestNeighbor      BuiltinOperator = 97
	OpLeakyRelu                  BuiltinOperator = 98
	OpSquaredDifference          BuiltinOperator = 99
	OpMirrorPad                  BuiltinOperator = 100
	OpAbs                        BuiltinOperator = 101
	OpSplitV                     BuiltinOperator = 102
	OpUnique                     BuiltinOperator = 103
	OpCeil                       BuiltinOperator = 104
	OpReverseV2                  BuiltinOperator = 105
	OpAddN                       BuiltinOperator = 106
	OpGatherND                   BuiltinOperator = 107
	OpCos                        BuiltinOperator = 108
	OpWhere                      BuiltinOperator = 109
	OpRank                       BuiltinOperator = 110
	OpElu                        BuiltinOperator = 111
	OpReverseSequence            BuiltinOperator = 112
	OpMatrixDiag                 BuiltinOperator = 113
	OpQuantize                   BuiltinOperator = 114
	OpMatrixSetDiag              BuiltinOperator = 115
	OpRound                      BuiltinOperator = 116
	OpHardSwish                  BuiltinOperator = 117
	OpIf                         BuiltinOperator = 118
	OpWhile                      BuiltinOperator = 119
	OpNonMaxSuppressionV4        BuiltinOperator = 120
	OpNonMaxSuppressionV5        BuiltinOperator = 121
	OpScatterND                  BuiltinOperator = 122
	OpSelectV2                   BuiltinOperator = 123
	OpDensify                    BuiltinOperator = 124
	OpSegmentSum                 BuiltinOperator = 125
	OpBatchMatmul                BuiltinOperator = 126
)

var builtinOperatorNames = map[BuiltinOperator]string{
	OpAdd:                        "ADD",
	OpAveragePool2D:              "AVERAGE_POOL_2D",
	OpConcatenation:              "CONCATENATION",
	OpConv2D:                     "CONV_2D",
	OpDepthwiseConv2D:            "DEPTHWISE_CONV_2D",
	OpDepthToSpace:               "DEPTH_TO_SPACE",
	OpDequantize:                 "DEQUANTIZE",
	OpEmbeddingLookup:            "EMBEDDING_LOOKUP",
	OpFloor:                      "FLOOR",
	OpFullyConnected:             "FULLY_CONNECTED",
	OpHashtableLookup:            "HASHTABLE_LOOKUP",
	OpL2Normalization:            "L2_NORMALIZATION",
	OpL2Pool2D:                   "L2_POOL_2D",
	OpLocalResponseNormalization: "LOCAL_RESPONSE_NORMALIZATION",
	OpLogistic:                   "LOGISTIC",
	OpLshProjection:              "LSH_PROJECTION",
	OpLstm:                       "LSTM",
	OpMaxPool2D:                  "MAX_POOL_2D",
	OpMul:                        "MUL",
	OpRelu:                       "RELU",
	OpReluN1To1:                  "RELU_N1_TO_1",
	OpRelu6:                      "RELU6",
	OpReshape:                    "RESHAPE",
	OpResizeBilinear:             "RESIZE_BILINEAR",
	OpRnn:                        "RNN",
	OpSoftmax:                    "SOFTMAX",
	OpSpaceToDepth:               "SPACE_TO_DEPTH",
	OpSvdf:                       "SVDF",
	OpTanh:                       "TANH",
	OpConcatEmbeddings:           "CONCAT_EMBEDDINGS",
	OpSkipGram:                   "SKIP_GRAM",
	OpCall:                       "CALL",
	OpCustom:                     "CUSTOM",
	OpEmbeddingLookupSparse:      "EMBEDDING_LOOKUP_SPARSE",
	OpPad:                        "PAD",
	OpUnidirectionalSequenceRnn:  "UNIDIRECTIONAL_SEQUENCE_RNN",
	OpGather:                     "GATHER",
	OpBatchToSpaceND:             "BATCH_TO_SPACE_ND",
	OpSpaceToBatchND:             "SPACE_TO_BATCH_ND",
	OpTranspose:                  "TRANSPOSE",
	OpMean:                       "MEAN",
	OpSub:                        "SUB",
	OpDiv:                        "DIV",
	OpSqueeze:                    "SQUEEZE",
	OpUnidirectionalSequenceLstm: "UNIDIRECTIONAL_SEQUENCE_LSTM",
	OpStridedSlice:               "STRIDED_SLICE",
	OpBidirectionalSequenceRnn:   "BIDIRECTIONAL_SEQUENCE_RNN",
	OpExp:                        "EXP",
	OpTopkV2:                     "TOPK_V2",
	OpSplit:                      "SPLIT",
	OpLogSoftmax:                 "LOG_SOFTMAX",
	OpDelegate:                   "DELEGATE",
	OpBidirectionalSequenceLstm:  "BIDIRECTIONAL_SEQUENCE_LSTM",
	OpCast:                       "CAST",
	OpPrelu:                      "PRELU",
	OpMaximum:                    "MAXIMUM",
	OpArgMax:                     "ARG_MAX",
	OpMinimum:                    "MINIMUM",
	OpLess:                       "LESS",
	OpNeg:                        "NEG",
	OpPadv2:                      "PADV2",
	OpGreater:                    "GREATER",
	OpGreaterEqual:               "GREATER_EQUAL",
	OpLessEqual:                  "LESS_EQUAL",
	OpSelect:                     "SELECT",
	OpSlice:                      "SLICE",
	OpSin:                        "SIN",
	OpTransposeConv:              "TRANSPOSE_CONV",
	OpSparseToDense:              "SPARSE_TO_DENSE",
	OpTile:                       "TILE",
	OpExpandDims:                 "EXPAND_DIMS",
	OpEqual:                      "EQUAL",
	OpNotEqual:                   "NOT_EQUAL",
	OpLog:                        "LOG",
	OpSum:                        "SUM",
	OpSqrt:                       "SQRT",
	OpRsqrt:                      "RSQRT",
	OpShape:                      "SHAPE",
	OpPow:                        "POW",
	OpArgMin:                     "ARG_MIN",
	OpFakeQuant:                  "FAKE_QUANT",
	OpReduceProd:                 "REDUCE_PROD",
	OpReduceMax:                  "REDUCE_MAX",
	OpPack:                       "PACK",
	OpLogicalOr:                  "LOGICAL_OR",
	OpOneHot:                     "ONE_HOT",
	OpLogicalAnd:                 "LOGICAL_AND",
	OpLogicalNot:                 "LOGICAL_NOT",
	OpUnpack:                     "UNPACK",
	OpReduceMin:                  "REDUCE_MIN",
	OpFloorDiv:                   "FLOOR_DIV",
	OpReduceAny:                  "REDUCE_ANY",
	OpSquare:                     "SQUARE",
	OpZerosLike:                  "ZEROS_LIKE",
	OpFill:                       "FILL",
	OpFloorMod:                   "FLOOR_MOD",
	OpRange:                      "RANGE",
	OpResizeNearestNeighbor:      "RESIZE_NEAREST_NEIGHBOR",
	OpLeakyRelu:                  "LEAKY_RELU",
	OpSquaredDifference:          "SQUARED_DIFFERENCE",
	OpMirrorPad:                  "MIRROR_PAD",
	OpAbs:                        "ABS",
	OpSplitV:                     "SPLIT_V",
	OpUnique:                     "UNIQUE",
	OpCeil:                       "CEIL",
	OpReverseV2:                  "REVERSE_V2",
	OpAddN:                       "ADD_N",
	OpGatherND:                   "GATHER_ND",
	OpCos:                        "COS",
	OpWhere:                      "WHERE",
	OpRank:                       "RANK",
	OpElu:                        "ELU",
	OpReverseSequence:            "REVERSE_SEQUENCE",
	OpMatrixDiag:                 "MATRIX_DIAG",
	OpQuantize:                   "QUANTIZE",
	OpMatrixSetDiag:              "MATRIX_SET_DIAG",
	OpRound:                      "ROUND",
	OpHardSwish:                  "HARD_SWISH",
	OpIf:                         "IF",
	OpWhile:                      "WHILE",
	OpNonMaxSuppressionV4:        "NON_MAX_SUPPRESSION_V4",
	OpNonMaxSuppressionV5:        "NON_MAX_SUPPRESSION_V5",
	OpScatterND:                  "SCATTER_ND",
	OpSelectV2:                   "SELECT_V2",
	OpDensify:                    "DENSIFY",
	OpSegmentSum:                 "SEGMENT_SUM",
	OpBatchMatmul:                "BATCH_MATMUL",
}

// String gibt den Schema-Namen zurueck, z.B. "CONV_2D"
func (op BuiltinOperator) String() string {
	if s, ok := builtinOperatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("BUILTIN_%d", int32(op))
}

// ParseBuiltinOperator parst einen Schema-Namen wie "CONV_2D" (Gross-/Kleinschreibung egal).
// Bei einem unbekannten Namen nennt der Fehler den aehnlichsten bekannten Namen.
func ParseBuiltinOperator(s string) (BuiltinOperator, error) {
	name := strings.ToUpper(strings.TrimSpace(s))

	var closest string
	score := math.MaxInt
	for op, n := range builtinOperatorNames {
		if n == name {
			return op, nil
		}
		if d := levenshtein.ComputeDistance(name, n); d < score || (d == score && n < closest) {
			score, closest = d, n
		}
	}
	return 0, fmt.Errorf("unknown operator %q, did you mean %q?", s, closest)
}
