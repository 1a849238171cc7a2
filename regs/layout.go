package regs

// Register space geometry. Each programmable-logic block owns a fixed
// stride of words.
const (
	BlockSize  = 256
	SpaceBytes = 0x20000
	Words      = SpaceBytes / 4

	DMABlock       = 0
	USRPBlock      = 1
	SpecSenseBlock = 2
	GlobalBlock    = 127

	dmaBase       = BlockSize * DMABlock
	usrpBase      = BlockSize * USRPBlock
	specSenseBase = BlockSize * SpecSenseBlock
	globalBase    = BlockSize * GlobalBlock
)

// Phase calibration defaults for the USRP clock interface.
const (
	RXPhaseCal = 460
	TXPhaseCal = 467
)

// USRP mode commands (upper nibble) and modes (lower nibble).
const (
	CmdTXMode = 0x1 << 4
	CmdRXMode = 0x2 << 4

	RXADCRawMode      = 0x0
	RXADCDCOffMode    = 0x1
	RXTestSineMode    = 0x2
	RXTestPatternMode = 0x3
	RXAll1sMode       = 0x4
	RXAll0sMode       = 0x5
	RXI1sQ0sMode      = 0x6
	RXI0sQ1sMode      = 0x7
	RXCalIntfMode     = 0x8
	RXTXLoopbackMode  = 0x9

	TXPassthruMode = 0x0
	TXDACRawMode   = 0x1
	TXDACDCOffMode = 0x2
	TXSineTestMode = 0x3
)

// DMA block.
var (
	DMABank0              = Field{"DMA_BANK0", dmaBase + 0, 0, 32}
	DMAMM2SXferEn         = Field{"DMA_MM2S_XFER_EN", dmaBase + 0, 0, 1}
	DMAS2MMXferEn         = Field{"DMA_S2MM_XFER_EN", dmaBase + 0, 1, 1}
	DMAResetMM2SCmdFIFO   = Field{"DMA_RESET_MM2S_CMD_FIFO", dmaBase + 0, 2, 1}
	DMAResetS2MMCmdFIFO   = Field{"DMA_RESET_S2MM_CMD_FIFO", dmaBase + 0, 3, 1}
	DMAMM2SCmdFIFOLoop    = Field{"DMA_MM2S_CMD_FIFO_LOOP", dmaBase + 0, 4, 8}
	DMAS2MMCmdFIFOLoop    = Field{"DMA_S2MM_CMD_FIFO_LOOP", dmaBase + 0, 12, 8}
	DMAStsFIFOAutoRead    = Field{"DMA_STS_FIFO_AUTO_READ", dmaBase + 0, 20, 1}
	DMAResetStsFIFO       = Field{"DMA_RESET_STS_FIFO", dmaBase + 0, 21, 1}
	DMAClearMM2SXferCnt   = Field{"DMA_CLEAR_MM2S_XFER_CNT", dmaBase + 0, 22, 1}
	DMAClearS2MMXferCnt   = Field{"DMA_CLEAR_S2MM_XFER_CNT", dmaBase + 0, 23, 1}
	DMAMM2SXferInProgress = Field{"DMA_MM2S_XFER_IN_PROGRESS", dmaBase + 0, 24, 1}
	DMAS2MMXferInProgress = Field{"DMA_S2MM_XFER_IN_PROGRESS", dmaBase + 0, 25, 1}
	DMABank1              = Field{"DMA_BANK1", dmaBase + 1, 0, 32}
	DMAS2MMInterrupt      = Field{"DMA_S2MM_INTERRUPT", dmaBase + 1, 0, 1}
	DMAMM2SInterrupt      = Field{"DMA_MM2S_INTERRUPT", dmaBase + 1, 1, 1}
	DMABank2              = Field{"DMA_BANK2", dmaBase + 2, 0, 32}
	DMAMM2SCmdAddr        = Field{"DMA_MM2S_CMD_ADDR", dmaBase + 2, 0, 32}
	DMABank3              = Field{"DMA_BANK3", dmaBase + 3, 0, 32}
	DMAMM2SCmdData        = Field{"DMA_MM2S_CMD_DATA", dmaBase + 3, 0, 32}
	DMAMM2SCmdSize        = Field{"DMA_MM2S_CMD_SIZE", dmaBase + 3, 0, 23}
	DMAMM2SCmdTDest       = Field{"DMA_MM2S_CMD_TDEST", dmaBase + 3, 23, 4}
	DMAMM2SCmdEn          = Field{"DMA_MM2S_CMD_EN", dmaBase + 3, 31, 1}
	DMABank4              = Field{"DMA_BANK4", dmaBase + 4, 0, 32}
	DMAS2MMCmdAddr        = Field{"DMA_S2MM_CMD_ADDR", dmaBase + 4, 0, 32}
	DMABank5              = Field{"DMA_BANK5", dmaBase + 5, 0, 32}
	DMAS2MMCmdData        = Field{"DMA_S2MM_CMD_DATA", dmaBase + 5, 0, 32}
	DMAS2MMCmdSize        = Field{"DMA_S2MM_CMD_SIZE", dmaBase + 5, 0, 23}
	DMAS2MMCmdTDest       = Field{"DMA_S2MM_CMD_TDEST", dmaBase + 5, 23, 4}
	DMAS2MMCmdEn          = Field{"DMA_S2MM_CMD_EN", dmaBase + 5, 31, 1}
	DMABank6              = Field{"DMA_BANK6", dmaBase + 6, 0, 32}
	DMAMM2SStsFIFO        = Field{"DMA_MM2S_STS_FIFO", dmaBase + 6, 0, 32}
	DMABank7              = Field{"DMA_BANK7", dmaBase + 7, 0, 32}
	DMAS2MMStsFIFO        = Field{"DMA_S2MM_STS_FIFO", dmaBase + 7, 0, 32}
	DMABank8              = Field{"DMA_BANK8", dmaBase + 8, 0, 32}
	DMAMM2SStsFIFOEmpty   = Field{"DMA_MM2S_STS_FIFO_EMPTY", dmaBase + 8, 0, 1}
	DMAS2MMStsFIFOEmpty   = Field{"DMA_S2MM_STS_FIFO_EMPTY", dmaBase + 8, 2, 1}
	DMABank9              = Field{"DMA_BANK9", dmaBase + 9, 0, 32}
	DMAMM2SCmdFIFOEmpty   = Field{"DMA_MM2S_CMD_FIFO_EMPTY", dmaBase + 9, 0, 1}
	DMAS2MMCmdFIFOEmpty   = Field{"DMA_S2MM_CMD_FIFO_EMPTY", dmaBase + 9, 2, 1}
	DMABank10             = Field{"DMA_BANK10", dmaBase + 10, 0, 32}
	DMAMM2SXferCnt        = Field{"DMA_MM2S_XFER_CNT", dmaBase + 10, 0, 16}
	DMABank11             = Field{"DMA_BANK11", dmaBase + 11, 0, 32}
	DMAS2MMXferCnt        = Field{"DMA_S2MM_XFER_CNT", dmaBase + 11, 16, 16}
	DMABank12             = Field{"DMA_BANK12", dmaBase + 12, 0, 32}
	DMACheckword          = Field{"DMA_CHECKWORD", dmaBase + 12, 0, 32}
	DMABank13             = Field{"DMA_BANK13", dmaBase + 13, 0, 32}
	DMADebugCnt           = Field{"DMA_DEBUG_CNT", dmaBase + 13, 0, 32}
)

// USRP interface block.
var (
	USRPBank0              = Field{"USRP_BANK0", usrpBase + 0, 0, 32}
	USRPRXEnable           = Field{"USRP_RX_ENABLE", usrpBase + 0, 0, 1}
	USRPTXEnable           = Field{"USRP_TX_ENABLE", usrpBase + 0, 1, 1}
	USRPRXEnableSideband   = Field{"USRP_RX_ENABLE_SIDEBAND", usrpBase + 0, 2, 1}
	USRPTXEnableSideband   = Field{"USRP_TX_ENABLE_SIDEBAND", usrpBase + 0, 3, 1}
	USRPRXFIFOReset        = Field{"USRP_RX_FIFO_RESET", usrpBase + 0, 4, 1}
	USRPTXFIFOReset        = Field{"USRP_TX_FIFO_RESET", usrpBase + 0, 5, 1}
	USRPRXFIFOBypass       = Field{"USRP_RX_FIFO_BYPASS", usrpBase + 0, 6, 1}
	USRPRXFIFOOverflowClr  = Field{"USRP_RX_FIFO_OVERFLOW_CLR", usrpBase + 0, 7, 1}
	USRPTXFIFOUnderflowClr = Field{"USRP_TX_FIFO_UNDERFLOW_CLR", usrpBase + 0, 8, 1}
	USRPAXISMasterTDest    = Field{"USRP_AXIS_MASTER_TDEST", usrpBase + 0, 29, 3}
	USRPBank1              = Field{"USRP_BANK1", usrpBase + 1, 0, 32}
	USRPModeCtrl           = Field{"USRP_USRP_MODE_CTRL", usrpBase + 1, 0, 8}
	USRPBank2              = Field{"USRP_BANK2", usrpBase + 2, 0, 32}
	USRPRXPacketSize       = Field{"USRP_RX_PACKET_SIZE", usrpBase + 2, 0, 24}
	USRPRXFix2FloatBypass  = Field{"USRP_RX_FIX2FLOAT_BYPASS", usrpBase + 2, 24, 1}
	USRPRXCICBypass        = Field{"USRP_RX_CIC_BYPASS", usrpBase + 2, 25, 1}
	USRPRXHBBypass         = Field{"USRP_RX_HB_BYPASS", usrpBase + 2, 26, 1}
	USRPTXFix2FloatBypass  = Field{"USRP_TX_FIX2FLOAT_BYPASS", usrpBase + 2, 27, 1}
	USRPTXCICBypass        = Field{"USRP_TX_CIC_BYPASS", usrpBase + 2, 28, 1}
	USRPTXHBBypass         = Field{"USRP_TX_HB_BYPASS", usrpBase + 2, 29, 1}
	USRPBank3              = Field{"USRP_BANK3", usrpBase + 3, 0, 32}
	USRPRXCICDecim         = Field{"USRP_RX_CIC_DECIM", usrpBase + 3, 0, 11}
	USRPTXCICInterp        = Field{"USRP_TX_CIC_INTERP", usrpBase + 3, 16, 11}
	USRPBank4              = Field{"USRP_BANK4", usrpBase + 4, 0, 32}
	USRPRXGain             = Field{"USRP_RX_GAIN", usrpBase + 4, 0, 32}
	USRPBank5              = Field{"USRP_BANK5", usrpBase + 5, 0, 32}
	USRPTXGain             = Field{"USRP_TX_GAIN", usrpBase + 5, 0, 32}
	USRPBank6              = Field{"USRP_BANK6", usrpBase + 6, 0, 32}
	USRPRXResetCal         = Field{"USRP_RX_RESET_CAL", usrpBase + 6, 0, 1}
	USRPRXPhaseInit        = Field{"USRP_RX_PHASE_INIT", usrpBase + 6, 1, 10}
	USRPTXResetCal         = Field{"USRP_TX_RESET_CAL", usrpBase + 6, 16, 1}
	USRPTXPhaseInit        = Field{"USRP_TX_PHASE_INIT", usrpBase + 6, 17, 10}
	USRPRXPhaseEn          = Field{"USRP_RX_PHASE_EN", usrpBase + 6, 28, 1}
	USRPRXPhaseIncDec      = Field{"USRP_RX_PHASE_INCDEC", usrpBase + 6, 29, 1}
	USRPTXPhaseEn          = Field{"USRP_TX_PHASE_EN", usrpBase + 6, 30, 1}
	USRPTXPhaseIncDec      = Field{"USRP_TX_PHASE_INCDEC", usrpBase + 6, 31, 1}
	USRPBank7              = Field{"USRP_BANK7", usrpBase + 7, 0, 32}
	USRPClockLocked        = Field{"USRP_CLOCK_LOCKED", usrpBase + 7, 0, 1}
	USRPRXFIFOOverflow     = Field{"USRP_RX_FIFO_OVERFLOW", usrpBase + 7, 1, 1}
	USRPTXFIFOUnderflow    = Field{"USRP_TX_FIFO_UNDERFLOW", usrpBase + 7, 2, 1}
	USRPRXCalComplete      = Field{"USRP_RX_CAL_COMPLETE", usrpBase + 7, 3, 1}
	USRPTXCalComplete      = Field{"USRP_TX_CAL_COMPLETE", usrpBase + 7, 4, 1}
	USRPRXPhaseBusy        = Field{"USRP_RX_PHASE_BUSY", usrpBase + 7, 5, 1}
	USRPTXPhaseBusy        = Field{"USRP_TX_PHASE_BUSY", usrpBase + 7, 6, 1}
	USRPUARTBusy           = Field{"USRP_UART_BUSY", usrpBase + 7, 7, 1}
	USRPClkRXPhase         = Field{"USRP_CLK_RX_PHASE", usrpBase + 7, 10, 10}
	USRPClkTXPhase         = Field{"USRP_CLK_TX_PHASE", usrpBase + 7, 20, 10}
)

// Spectrum sensing block.
var (
	SpecSenseBank0                   = Field{"SPEC_SENSE_BANK0", specSenseBase + 0, 0, 32}
	SpecSenseEnableFFT               = Field{"SPEC_SENSE_ENABLE_FFT", specSenseBase + 0, 0, 1}
	SpecSenseAXISMasterTDest         = Field{"SPEC_SENSE_AXIS_MASTER_TDEST", specSenseBase + 0, 29, 3}
	SpecSenseBank1                   = Field{"SPEC_SENSE_BANK1", specSenseBase + 1, 0, 32}
	SpecSenseAXISConfigTData         = Field{"SPEC_SENSE_AXIS_CONFIG_TDATA", specSenseBase + 1, 0, 5}
	SpecSenseAXISConfigTValid        = Field{"SPEC_SENSE_AXIS_CONFIG_TVALID", specSenseBase + 1, 5, 1}
	SpecSenseOutputMode              = Field{"SPEC_SENSE_OUTPUT_MODE", specSenseBase + 1, 8, 2}
	SpecSenseEnableThresholdIRQ      = Field{"SPEC_SENSE_ENABLE_THRESHOLD_IRQ", specSenseBase + 1, 10, 1}
	SpecSenseEnableThreshSideband    = Field{"SPEC_SENSE_ENABLE_THRESH_SIDEBAND", specSenseBase + 1, 11, 1}
	SpecSenseEnableNotThreshSideband = Field{"SPEC_SENSE_ENABLE_NOT_THRESH_SIDEBAND", specSenseBase + 1, 12, 1}
	SpecSenseClearThresholdLatched   = Field{"SPEC_SENSE_CLEAR_THRESHOLD_LATCHED", specSenseBase + 1, 13, 1}
	SpecSenseBank2                   = Field{"SPEC_SENSE_BANK2", specSenseBase + 2, 0, 32}
	SpecSenseThreshold               = Field{"SPEC_SENSE_THRESHOLD", specSenseBase + 2, 0, 32}
	SpecSenseBank3                   = Field{"SPEC_SENSE_BANK3", specSenseBase + 3, 0, 32}
	SpecSenseThresholdExceededIndex  = Field{"SPEC_SENSE_THRESHOLD_EXCEEDED_INDEX", specSenseBase + 3, 0, 16}
	SpecSenseThresholdExceeded       = Field{"SPEC_SENSE_THRESHOLD_EXCEEDED", specSenseBase + 3, 31, 1}
	SpecSenseBank4                   = Field{"SPEC_SENSE_BANK4", specSenseBase + 4, 0, 32}
	SpecSenseThresholdExceededMag    = Field{"SPEC_SENSE_THRESHOLD_EXCEEDED_MAG", specSenseBase + 4, 0, 32}
)

// Global block.
var (
	GlobalBank0       = Field{"GLOBAL_BANK0", globalBase + 0, 0, 32}
	GlobalReset       = Field{"GLOBAL_RESET", globalBase + 0, 0, 1}
	GlobalBank1       = Field{"GLOBAL_BANK1", globalBase + 1, 0, 32}
	GlobalMAXIAWProt  = Field{"GLOBAL_M_AXI_AWPROT", globalBase + 1, 0, 3}
	GlobalMAXIAWCache = Field{"GLOBAL_M_AXI_AWCACHE", globalBase + 1, 3, 4}
	GlobalMAXIAWUser  = Field{"GLOBAL_M_AXI_AWUSER", globalBase + 1, 7, 5}
	GlobalMAXIARProt  = Field{"GLOBAL_M_AXI_ARPROT", globalBase + 1, 12, 3}
	GlobalMAXIARCache = Field{"GLOBAL_M_AXI_ARCACHE", globalBase + 1, 15, 4}
	GlobalMAXIARUser  = Field{"GLOBAL_M_AXI_ARUSER", globalBase + 1, 19, 5}
)

// Fields lists every named register.
var Fields = []Field{
	DMABank0, DMAMM2SXferEn, DMAS2MMXferEn, DMAResetMM2SCmdFIFO,
	DMAResetS2MMCmdFIFO, DMAMM2SCmdFIFOLoop, DMAS2MMCmdFIFOLoop,
	DMAStsFIFOAutoRead, DMAResetStsFIFO, DMAClearMM2SXferCnt,
	DMAClearS2MMXferCnt, DMAMM2SXferInProgress, DMAS2MMXferInProgress,
	DMABank1, DMAS2MMInterrupt, DMAMM2SInterrupt,
	DMABank2, DMAMM2SCmdAddr,
	DMABank3, DMAMM2SCmdData, DMAMM2SCmdSize, DMAMM2SCmdTDest, DMAMM2SCmdEn,
	DMABank4, DMAS2MMCmdAddr,
	DMABank5, DMAS2MMCmdData, DMAS2MMCmdSize, DMAS2MMCmdTDest, DMAS2MMCmdEn,
	DMABank6, DMAMM2SStsFIFO,
	DMABank7, DMAS2MMStsFIFO,
	DMABank8, DMAMM2SStsFIFOEmpty, DMAS2MMStsFIFOEmpty,
	DMABank9, DMAMM2SCmdFIFOEmpty, DMAS2MMCmdFIFOEmpty,
	DMABank10, DMAMM2SXferCnt,
	DMABank11, DMAS2MMXferCnt,
	DMABank12, DMACheckword,
	DMABank13, DMADebugCnt,

	USRPBank0, USRPRXEnable, USRPTXEnable, USRPRXEnableSideband,
	USRPTXEnableSideband, USRPRXFIFOReset, USRPTXFIFOReset,
	USRPRXFIFOBypass, USRPRXFIFOOverflowClr, USRPTXFIFOUnderflowClr,
	USRPAXISMasterTDest,
	USRPBank1, USRPModeCtrl,
	USRPBank2, USRPRXPacketSize, USRPRXFix2FloatBypass, USRPRXCICBypass,
	USRPRXHBBypass, USRPTXFix2FloatBypass, USRPTXCICBypass, USRPTXHBBypass,
	USRPBank3, USRPRXCICDecim, USRPTXCICInterp,
	USRPBank4, USRPRXGain,
	USRPBank5, USRPTXGain,
	USRPBank6, USRPRXResetCal, USRPRXPhaseInit, USRPTXResetCal,
	USRPTXPhaseInit, USRPRXPhaseEn, USRPRXPhaseIncDec, USRPTXPhaseEn,
	USRPTXPhaseIncDec,
	USRPBank7, USRPClockLocked, USRPRXFIFOOverflow, USRPTXFIFOUnderflow,
	USRPRXCalComplete, USRPTXCalComplete, USRPRXPhaseBusy, USRPTXPhaseBusy,
	USRPUARTBusy, USRPClkRXPhase, USRPClkTXPhase,

	SpecSenseBank0, SpecSenseEnableFFT, SpecSenseAXISMasterTDest,
	SpecSenseBank1, SpecSenseAXISConfigTData, SpecSenseAXISConfigTValid,
	SpecSenseOutputMode, SpecSenseEnableThresholdIRQ,
	SpecSenseEnableThreshSideband, SpecSenseEnableNotThreshSideband,
	SpecSenseClearThresholdLatched,
	SpecSenseBank2, SpecSenseThreshold,
	SpecSenseBank3, SpecSenseThresholdExceededIndex, SpecSenseThresholdExceeded,
	SpecSenseBank4, SpecSenseThresholdExceededMag,

	GlobalBank0, GlobalReset,
	GlobalBank1, GlobalMAXIAWProt, GlobalMAXIAWCache, GlobalMAXIAWUser,
	GlobalMAXIARProt, GlobalMAXIARCache, GlobalMAXIARUser,
}

// Lookup returns the field with the hardware name name.
func Lookup(name string) (Field, bool) {
	for _, f := range Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
