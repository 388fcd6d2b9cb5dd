// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fei4

// Register tables of the two FE-I4 flavors, from the chip manuals.
// The constant patterns at addresses 40/41 are read-only markers the
// chip reports back; they are named Const40/Const41 here.

func fei4a() *Flavor {
	return &Flavor{
		Name: "fei4a",
		Global: []GlobalReg{
			{Name: "spare_1", Addr: 1, Len: 16, RO: true},
			{Name: "spare_2", Addr: 2, Len: 11, RO: true},
			{Name: "Conf_AddrEnable", Addr: 2, Len: 1, Off: 11, Reset: 1},
			{Name: "Trig_Count", Addr: 2, Len: 4, Off: 12},
			{Name: "ErrorMask", Addr: 3, Len: 32, Reset: 4292872191},
			{Name: "Vthin", Addr: 5, Len: 8, LE: true, Reset: 255},
			{Name: "PrmpVbp_R", Addr: 5, Len: 8, Off: 8, LE: true, Reset: 43},
			{Name: "PrmpVbp", Addr: 6, Len: 8, LE: true, Reset: 43},
			{Name: "DisVbn_CPPM", Addr: 6, Len: 8, Off: 8, LE: true, Reset: 62},
			{Name: "DisVbn", Addr: 7, Len: 8, LE: true, Reset: 40},
			{Name: "TdacVbp", Addr: 7, Len: 8, Off: 8, LE: true, Reset: 240},
			{Name: "Amp2VbpFol", Addr: 8, Len: 8, LE: true, Reset: 26},
			{Name: "Amp2Vbn", Addr: 8, Len: 8, Off: 8, LE: true, Reset: 79},
			{Name: "Amp2Vbp", Addr: 9, Len: 8, LE: true, Reset: 85},
			{Name: "PrmpVbp_T", Addr: 9, Len: 8, Off: 8, LE: true},
			{Name: "Amp2Vbpff", Addr: 10, Len: 8, LE: true, Reset: 50},
			{Name: "FdacVbn", Addr: 10, Len: 8, Off: 8, LE: true, Reset: 15},
			{Name: "PrmpVbp_L", Addr: 11, Len: 8, LE: true, Reset: 43},
			{Name: "PrmpVbnFol", Addr: 11, Len: 8, Off: 8, LE: true, Reset: 106},
			{Name: "PrmpVbnLcc", Addr: 12, Len: 8, LE: true},
			{Name: "PrmpVbpf", Addr: 12, Len: 8, Off: 8, LE: true, Reset: 27},
			{Name: "spare_13", Addr: 13, Len: 1, RO: true},
			{Name: "Pixel_Strobes", Addr: 13, Len: 13, Off: 1, LE: true},
			{Name: "S0", Addr: 13, Len: 1, Off: 14},
			{Name: "S1", Addr: 13, Len: 1, Off: 15},
			{Name: "BonnDac", Addr: 14, Len: 8, LE: true, Reset: 237},
			{Name: "LvdsDrvIref", Addr: 14, Len: 8, Off: 8, LE: true, Reset: 171},
			{Name: "LvdsDrvVos", Addr: 15, Len: 8, LE: true, Reset: 105},
			{Name: "PllIbias", Addr: 15, Len: 8, Off: 8, LE: true, Reset: 88},
			{Name: "PllIcp", Addr: 16, Len: 8, LE: true, Reset: 28},
			{Name: "TempSensIbias", Addr: 16, Len: 8, Off: 8, LE: true},
			{Name: "PlsrIdacRamp", Addr: 17, Len: 8, LE: true, Reset: 180},
			{Name: "spare_17", Addr: 17, Len: 8, Off: 8, RO: true},
			{Name: "PlsrVgOpAmp", Addr: 18, Len: 8, LE: true, Reset: 255},
			{Name: "spare_18", Addr: 18, Len: 8, Off: 8, RO: true},
			{Name: "spare_19", Addr: 19, Len: 8, RO: true},
			{Name: "PlsrDacBias", Addr: 19, Len: 8, Off: 8, LE: true, Reset: 96},
			{Name: "Vthin_AltFine", Addr: 20, Len: 8, LE: true, Reset: 80},
			{Name: "Vthin_AltCoarse", Addr: 20, Len: 8, Off: 8, LE: true},
			{Name: "PlsrDAC", Addr: 21, Len: 10, LE: true},
			{Name: "DIGHITIN_SEL", Addr: 21, Len: 1, Off: 10},
			{Name: "DINJ_OVERRIDE", Addr: 21, Len: 1, Off: 11},
			{Name: "HITLD_IN", Addr: 21, Len: 1, Off: 12},
			{Name: "spare_21", Addr: 21, Len: 3, Off: 13, RO: true},
			{Name: "spare_22_0", Addr: 22, Len: 2, RO: true},
			{Name: "Colpr_Addr", Addr: 22, Len: 6, Off: 2, LE: true},
			{Name: "Colpr_Mode", Addr: 22, Len: 2, Off: 8, LE: true},
			{Name: "spare_22_1", Addr: 22, Len: 6, Off: 10, RO: true},
			{Name: "DisableColumnCnfg", Addr: 23, Len: 40, LE: true},
			{Name: "Trig_Lat", Addr: 25, Len: 8, Off: 8, Reset: 210},
			{Name: "HitDiscCnfg", Addr: 26, Len: 2},
			{Name: "StopModeCnfg", Addr: 26, Len: 1, Off: 2},
			{Name: "CMDcnt", Addr: 26, Len: 14, Off: 3, Reset: 11},
			{Name: "SR_Clock", Addr: 27, Len: 1, Off: 1},
			{Name: "Latch_En", Addr: 27, Len: 1, Off: 2},
			{Name: "SR_Clr", Addr: 27, Len: 1, Off: 3},
			{Name: "CalEn", Addr: 27, Len: 1, Off: 4},
			{Name: "GateHitOr", Addr: 27, Len: 1, Off: 5},
			{Name: "spare_27", Addr: 27, Len: 5, Off: 6, RO: true},
			{Name: "ReadSkipped", Addr: 27, Len: 1, Off: 11},
			{Name: "ReadErrorReq", Addr: 27, Len: 1, Off: 12},
			{Name: "StopClkPulse", Addr: 27, Len: 1, Off: 13},
			{Name: "Efuse_Sense", Addr: 27, Len: 1, Off: 14},
			{Name: "EN_PLL", Addr: 27, Len: 1, Off: 15, Reset: 1},
			{Name: "EN_320M", Addr: 28, Len: 1},
			{Name: "EN_160M", Addr: 28, Len: 1, Off: 1, Reset: 1},
			{Name: "CLK0_S2", Addr: 28, Len: 1, Off: 2, Reset: 1},
			{Name: "CLK0_S1", Addr: 28, Len: 1, Off: 3},
			{Name: "CLK0_S0", Addr: 28, Len: 1, Off: 4},
			{Name: "CLK1_S2", Addr: 28, Len: 1, Off: 5},
			{Name: "CLK1_S1", Addr: 28, Len: 1, Off: 6},
			{Name: "CLK1_S0", Addr: 28, Len: 1, Off: 7},
			{Name: "EN_80M", Addr: 28, Len: 1, Off: 8},
			{Name: "EN_40M", Addr: 28, Len: 1, Off: 9},
			{Name: "spare_28", Addr: 28, Len: 5, Off: 10, RO: true},
			{Name: "LvdsDrvSet06", Addr: 28, Len: 1, Off: 15, Reset: 1},
			{Name: "LvdsDrvSet12", Addr: 29, Len: 1, Reset: 1},
			{Name: "LvdsDrvSet30", Addr: 29, Len: 1, Off: 1, Reset: 1},
			{Name: "LvdsDrvEn", Addr: 29, Len: 1, Off: 2, Reset: 1},
			{Name: "spare_29_0", Addr: 29, Len: 1, Off: 3, RO: true},
			{Name: "EmptyRecordCnfg", Addr: 29, Len: 8, Off: 4},
			{Name: "Clk2OutCnfg", Addr: 29, Len: 1, Off: 12},
			{Name: "No8b10b", Addr: 29, Len: 1, Off: 13},
			{Name: "spare_29_1", Addr: 29, Len: 2, Off: 14, RO: true},
			{Name: "spare_30", Addr: 30, Len: 16, RO: true},
			{Name: "spare_31", Addr: 31, Len: 4, RO: true},
			{Name: "ExtAnaCalSW", Addr: 31, Len: 1, Off: 4},
			{Name: "ExtDigCalSW", Addr: 31, Len: 1, Off: 5},
			{Name: "PlsrDelay", Addr: 31, Len: 6, Off: 6, LE: true, Reset: 2},
			{Name: "PlsrPwr", Addr: 31, Len: 1, Off: 12, Reset: 1},
			{Name: "PlsrRiseUpTau", Addr: 31, Len: 3, Off: 13, Reset: 7},
			{Name: "SELB", Addr: 32, Len: 40, RegLE: true},
			{Name: "spare_34", Addr: 34, Len: 4, Off: 8, RO: true, RegLE: true},
			{Name: "Cref", Addr: 34, Len: 4, Off: 12, LE: true, RegLE: true, Reset: 13},
			{Name: "Chip_SN", Addr: 35, Len: 16},
			{Name: "Zero_64", Addr: 36, Len: 64, RO: true},
			{Name: "Const_40", Addr: 40, Len: 16, RO: true, Reset: 10922},
			{Name: "Const_41", Addr: 41, Len: 8, RO: true, Reset: 170},
			{Name: "EOCHLSkipped", Addr: 41, Len: 8, Off: 8, RO: true},
			{Name: "CMDErrReg", Addr: 42, Len: 16, RO: true},
			{Name: "Zero_336", Addr: 43, Len: 336, RO: true},
		},
		Pixel: fei4Pixel(),
	}
}

func fei4b() *Flavor {
	return &Flavor{
		Name: "fei4b",
		Global: []GlobalReg{
			{Name: "spare_0", Addr: 0, Len: 16, RO: true},
			{Name: "EventLimit", Addr: 1, Len: 8, LE: true},
			{Name: "SmallHitErase", Addr: 1, Len: 1, Off: 8},
			{Name: "spare_1", Addr: 1, Len: 7, Off: 9, RO: true},
			{Name: "spare_2", Addr: 2, Len: 11, RO: true},
			{Name: "Conf_AddrEnable", Addr: 2, Len: 1, Off: 11, Reset: 1},
			{Name: "Trig_Count", Addr: 2, Len: 4, Off: 12},
			{Name: "ErrorMask", Addr: 3, Len: 32, Reset: 4292986879},
			{Name: "GADCVref", Addr: 5, Len: 8, LE: true, Reset: 160},
			{Name: "PrmpVbp_R", Addr: 5, Len: 8, Off: 8, LE: true, Reset: 43},
			{Name: "PrmpVbp", Addr: 6, Len: 8, LE: true, Reset: 43},
			{Name: "spare_6", Addr: 6, Len: 8, Off: 8, RO: true},
			{Name: "DisVbn", Addr: 7, Len: 8, LE: true, Reset: 40},
			{Name: "TdacVbp", Addr: 7, Len: 8, Off: 8, LE: true, Reset: 100},
			{Name: "Amp2VbpFol", Addr: 8, Len: 8, LE: true, Reset: 26},
			{Name: "Amp2Vbn", Addr: 8, Len: 8, Off: 8, LE: true, Reset: 79},
			{Name: "Amp2Vbp", Addr: 9, Len: 8, LE: true, Reset: 85},
			{Name: "spare_9", Addr: 9, Len: 8, Off: 8, RO: true},
			{Name: "Amp2Vbpff", Addr: 10, Len: 8, LE: true, Reset: 50},
			{Name: "FdacVbn", Addr: 10, Len: 8, Off: 8, LE: true, Reset: 30},
			{Name: "PrmpVbp_L", Addr: 11, Len: 8, LE: true, Reset: 43},
			{Name: "PrmpVbnFol", Addr: 11, Len: 8, Off: 8, LE: true, Reset: 106},
			{Name: "PrmpVbnLcc", Addr: 12, Len: 8, LE: true},
			{Name: "PrmpVbpf", Addr: 12, Len: 8, Off: 8, LE: true, Reset: 27},
			{Name: "spare_13", Addr: 13, Len: 1, RO: true},
			{Name: "Pixel_Strobes", Addr: 13, Len: 13, Off: 1, LE: true},
			{Name: "S0", Addr: 13, Len: 1, Off: 14},
			{Name: "S1", Addr: 13, Len: 1, Off: 15},
			{Name: "GADCCompBias", Addr: 14, Len: 8, LE: true, Reset: 100},
			{Name: "LvdsDrvIref", Addr: 14, Len: 8, Off: 8, LE: true, Reset: 171},
			{Name: "LvdsDrvVos", Addr: 15, Len: 8, LE: true, Reset: 105},
			{Name: "PllIbias", Addr: 15, Len: 8, Off: 8, LE: true, Reset: 88},
			{Name: "PllIcp", Addr: 16, Len: 8, LE: true, Reset: 28},
			{Name: "TempSensIbias", Addr: 16, Len: 8, Off: 8, LE: true},
			{Name: "PlsrIdacRamp", Addr: 17, Len: 8, LE: true, Reset: 180},
			{Name: "spare_17", Addr: 17, Len: 8, Off: 8, RO: true},
			{Name: "PlsrVgOpAmp", Addr: 18, Len: 8, LE: true, Reset: 255},
			{Name: "VrefDigTune", Addr: 18, Len: 8, Off: 8, LE: true, Reset: 100},
			{Name: "VrefAnTune", Addr: 19, Len: 8, LE: true},
			{Name: "PlsrDacBias", Addr: 19, Len: 8, Off: 8, LE: true, Reset: 96},
			{Name: "Vthin_AltFine", Addr: 20, Len: 8, LE: true, Reset: 80},
			{Name: "Vthin_AltCoarse", Addr: 20, Len: 8, Off: 8, LE: true},
			{Name: "PlsrDAC", Addr: 21, Len: 10, LE: true},
			{Name: "DIGHITIN_SEL", Addr: 21, Len: 1, Off: 10},
			{Name: "DINJ_OVERRIDE", Addr: 21, Len: 1, Off: 11},
			{Name: "HITLD_IN", Addr: 21, Len: 1, Off: 12},
			{Name: "spare_21", Addr: 21, Len: 3, Off: 13, RO: true},
			{Name: "spare_22_0", Addr: 22, Len: 2, RO: true},
			{Name: "Colpr_Addr", Addr: 22, Len: 6, Off: 2, LE: true},
			{Name: "Colpr_Mode", Addr: 22, Len: 2, Off: 8, LE: true},
			{Name: "spare_22_1", Addr: 22, Len: 6, Off: 10, RO: true},
			{Name: "DisableColumnCnfg", Addr: 23, Len: 40, LE: true},
			{Name: "Trig_Lat", Addr: 25, Len: 8, Off: 8, Reset: 210},
			{Name: "HitDiscCnfg", Addr: 26, Len: 2},
			{Name: "StopModeCnfg", Addr: 26, Len: 1, Off: 2},
			{Name: "CMDcnt", Addr: 26, Len: 14, Off: 3, Reset: 11},
			{Name: "SR_Clock", Addr: 27, Len: 1, Off: 1},
			{Name: "Latch_En", Addr: 27, Len: 1, Off: 2},
			{Name: "SR_Clr", Addr: 27, Len: 1, Off: 3},
			{Name: "CalEn", Addr: 27, Len: 1, Off: 4},
			{Name: "GateHitOr", Addr: 27, Len: 1, Off: 5},
			{Name: "spare_27_0", Addr: 27, Len: 3, Off: 6, RO: true},
			{Name: "SR_Read", Addr: 27, Len: 1, Off: 9},
			{Name: "GADCStart", Addr: 27, Len: 1, Off: 10},
			{Name: "spare_27_1", Addr: 27, Len: 1, Off: 11, RO: true},
			{Name: "ReadErrorReq", Addr: 27, Len: 1, Off: 12},
			{Name: "StopClkPulse", Addr: 27, Len: 1, Off: 13},
			{Name: "Efuse_Sense", Addr: 27, Len: 1, Off: 14},
			{Name: "EN_PLL", Addr: 27, Len: 1, Off: 15, Reset: 1},
			{Name: "EN_320M", Addr: 28, Len: 1},
			{Name: "EN_160M", Addr: 28, Len: 1, Off: 1, Reset: 1},
			{Name: "CLK0_S2", Addr: 28, Len: 1, Off: 2, Reset: 1},
			{Name: "CLK0_S1", Addr: 28, Len: 1, Off: 3},
			{Name: "CLK0_S0", Addr: 28, Len: 1, Off: 4},
			{Name: "CLK1_S2", Addr: 28, Len: 1, Off: 5},
			{Name: "CLK1_S1", Addr: 28, Len: 1, Off: 6},
			{Name: "CLK1_S0", Addr: 28, Len: 1, Off: 7},
			{Name: "EN_80M", Addr: 28, Len: 1, Off: 8},
			{Name: "EN_40M", Addr: 28, Len: 1, Off: 9},
			{Name: "spare_28", Addr: 28, Len: 5, Off: 10, RO: true},
			{Name: "LvdsDrvSet06", Addr: 28, Len: 1, Off: 15, Reset: 1},
			{Name: "LvdsDrvSet12", Addr: 29, Len: 1, Reset: 1},
			{Name: "LvdsDrvSet30", Addr: 29, Len: 1, Off: 1, Reset: 1},
			{Name: "LvdsDrvEn", Addr: 29, Len: 1, Off: 2, Reset: 1},
			{Name: "spare_29_0", Addr: 29, Len: 1, Off: 3, RO: true},
			{Name: "EmptyRecordCnfg", Addr: 29, Len: 8, Off: 4},
			{Name: "Clk2OutCnfg", Addr: 29, Len: 1, Off: 12},
			{Name: "No8b10b", Addr: 29, Len: 1, Off: 13},
			{Name: "spare_29_1", Addr: 29, Len: 2, Off: 14, RO: true},
			{Name: "spare_30", Addr: 30, Len: 12, RO: true},
			{Name: "MonleakRange", Addr: 30, Len: 1, Off: 12},
			{Name: "TempSensDisable", Addr: 30, Len: 1, Off: 13, Reset: 1},
			{Name: "TempSensDiodeBiasSel", Addr: 30, Len: 2, Off: 14, LE: true},
			{Name: "GADCSel", Addr: 31, Len: 3},
			{Name: "spare_31", Addr: 31, Len: 1, Off: 3, RO: true},
			{Name: "ExtAnaCalSW", Addr: 31, Len: 1, Off: 4},
			{Name: "ExtDigCalSW", Addr: 31, Len: 1, Off: 5},
			{Name: "PlsrDelay", Addr: 31, Len: 6, Off: 6, LE: true, Reset: 2},
			{Name: "PlsrPwr", Addr: 31, Len: 1, Off: 12, Reset: 1},
			{Name: "PlsrRiseUpTau", Addr: 31, Len: 3, Off: 13, Reset: 7},
			{Name: "SELB", Addr: 32, Len: 40, RegLE: true},
			{Name: "spare_34_0", Addr: 34, Len: 3, Off: 8, RO: true, RegLE: true},
			{Name: "PrmpVbpMsbEn", Addr: 34, Len: 1, Off: 11, RegLE: true},
			{Name: "spare_34_1", Addr: 34, Len: 4, Off: 12, RO: true, RegLE: true},
			{Name: "Chip_SN", Addr: 35, Len: 16},
			{Name: "Zero_64", Addr: 36, Len: 64, RO: true},
			{Name: "GADCSelRB", Addr: 40, Len: 3, RO: true, LE: true},
			{Name: "GADCStatus", Addr: 40, Len: 1, Off: 3, RO: true},
			{Name: "GADCout", Addr: 40, Len: 10, Off: 4, RO: true},
			{Name: "Const_40", Addr: 40, Len: 2, Off: 14, RO: true},
			{Name: "Const_41", Addr: 41, Len: 8, RO: true, Reset: 170},
			{Name: "EOCHLSkipped", Addr: 41, Len: 8, Off: 8, RO: true},
			{Name: "CMDErrReg", Addr: 42, Len: 16, RO: true},
			{Name: "Zero_336", Addr: 43, Len: 336, RO: true},
		},
		Pixel: fei4Pixel(),
	}
}

// fei4Pixel returns the pixel-register table, identical for both
// flavors.
func fei4Pixel() []PixelReg {
	return []PixelReg{
		{Name: "Enable", Len: 1, PxStrobe: 0, Reset: 1},
		{Name: "TDAC", Len: 5, PxStrobe: 1, LE: true, Reset: 16},
		{Name: "C_High", Len: 1, PxStrobe: 6, Reset: 1},
		{Name: "C_Low", Len: 1, PxStrobe: 7, Reset: 1},
		{Name: "Imon", Len: 1, PxStrobe: 8, Reset: 1},
		{Name: "FDAC", Len: 4, PxStrobe: 9, Reset: 8},
		{Name: "EnableDigInj", Len: 1, PxStrobe: PxStrobeSR},
	}
}
