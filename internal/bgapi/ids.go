package bgapi

// Message classes.
const (
	ClassDFU        = 0x00
	ClassSystem     = 0x01
	ClassAdvertiser = 0x04
	ClassScanner    = 0x05
	ClassConnection = 0x06
	ClassGATT       = 0x09
	ClassGATTServer = 0x0A
)

// Commands. Each response carries the same ID as its command.
var (
	CmdDFUFlashSetAddress   = commandID(ClassDFU, 0x03)
	CmdDFUFlashUpload       = commandID(ClassDFU, 0x04)
	CmdDFUFlashUploadFinish = commandID(ClassDFU, 0x05)

	CmdSystemReset              = commandID(ClassSystem, 0x01)
	CmdSystemGetIdentityAddress = commandID(ClassSystem, 0x15)
	CmdSystemSetTxPower         = commandID(ClassSystem, 0x17)

	CmdAdvertiserCreateSet = commandID(ClassAdvertiser, 0x01)
	CmdAdvertiserSetTiming = commandID(ClassAdvertiser, 0x03)
	CmdAdvertiserSetPhy    = commandID(ClassAdvertiser, 0x06)
	CmdAdvertiserSetData   = commandID(ClassAdvertiser, 0x0F)
	CmdAdvertiserStart     = commandID(ClassAdvertiser, 0x09)
	CmdAdvertiserStop      = commandID(ClassAdvertiser, 0x0A)

	CmdScannerSetTiming = commandID(ClassScanner, 0x01)
	CmdScannerSetMode   = commandID(ClassScanner, 0x02)
	CmdScannerStart     = commandID(ClassScanner, 0x03)
	CmdScannerStop      = commandID(ClassScanner, 0x05)

	CmdConnectionOpen    = commandID(ClassConnection, 0x04)
	CmdConnectionClose   = commandID(ClassConnection, 0x05)
	CmdConnectionGetRSSI = commandID(ClassConnection, 0x02)

	CmdGATTDiscoverPrimaryServices            = commandID(ClassGATT, 0x01)
	CmdGATTDiscoverCharacteristics            = commandID(ClassGATT, 0x03)
	CmdGATTSetCharacteristicNotification      = commandID(ClassGATT, 0x05)
	CmdGATTReadCharacteristicValue            = commandID(ClassGATT, 0x07)
	CmdGATTWriteCharacteristicValue           = commandID(ClassGATT, 0x09)
	CmdGATTWriteCharacteristicValueWithoutRsp = commandID(ClassGATT, 0x0C)

	CmdGATTServerSendNotification = commandID(ClassGATTServer, 0x0F)
)

// Events.
var (
	EvtDFUBoot        = eventID(ClassDFU, 0x00)
	EvtDFUBootFailure = eventID(ClassDFU, 0x01)

	EvtSystemBoot = eventID(ClassSystem, 0x00)

	EvtScannerScanReport = eventID(ClassScanner, 0x01)

	EvtConnectionOpened = eventID(ClassConnection, 0x00)
	EvtConnectionClosed = eventID(ClassConnection, 0x01)
	EvtConnectionRSSI   = eventID(ClassConnection, 0x03)

	EvtGATTService             = eventID(ClassGATT, 0x01)
	EvtGATTCharacteristic      = eventID(ClassGATT, 0x02)
	EvtGATTCharacteristicValue = eventID(ClassGATT, 0x04)
	EvtGATTProcedureCompleted  = eventID(ClassGATT, 0x06)

	EvtGATTServerAttributeValue       = eventID(ClassGATTServer, 0x00)
	EvtGATTServerCharacteristicStatus = eventID(ClassGATTServer, 0x03)
)

// connectionOffset is the payload offset of the connection handle for
// connection-scoped events.
var connectionOffset = map[ID]int{
	EvtConnectionOpened:               8,
	EvtConnectionClosed:               2,
	EvtConnectionRSSI:                 0,
	EvtGATTService:                    0,
	EvtGATTCharacteristic:             0,
	EvtGATTCharacteristicValue:        0,
	EvtGATTProcedureCompleted:         0,
	EvtGATTServerAttributeValue:       0,
	EvtGATTServerCharacteristicStatus: 0,
}

var names = map[ID]string{
	CmdDFUFlashSetAddress:                     "dfu_flash_set_address",
	CmdDFUFlashUpload:                         "dfu_flash_upload",
	CmdDFUFlashUploadFinish:                   "dfu_flash_upload_finish",
	CmdSystemReset:                            "system_reset",
	CmdSystemGetIdentityAddress:               "system_get_identity_address",
	CmdSystemSetTxPower:                       "system_set_tx_power",
	CmdAdvertiserCreateSet:                    "advertiser_create_set",
	CmdAdvertiserSetTiming:                    "advertiser_set_timing",
	CmdAdvertiserSetPhy:                       "advertiser_set_phy",
	CmdAdvertiserSetData:                      "advertiser_set_data",
	CmdAdvertiserStart:                        "advertiser_start",
	CmdAdvertiserStop:                         "advertiser_stop",
	CmdScannerSetTiming:                       "scanner_set_timing",
	CmdScannerSetMode:                         "scanner_set_mode",
	CmdScannerStart:                           "scanner_start",
	CmdScannerStop:                            "scanner_stop",
	CmdConnectionOpen:                         "connection_open",
	CmdConnectionClose:                        "connection_close",
	CmdConnectionGetRSSI:                      "connection_get_rssi",
	CmdGATTDiscoverPrimaryServices:            "gatt_discover_primary_services",
	CmdGATTDiscoverCharacteristics:            "gatt_discover_characteristics",
	CmdGATTSetCharacteristicNotification:      "gatt_set_characteristic_notification",
	CmdGATTReadCharacteristicValue:            "gatt_read_characteristic_value",
	CmdGATTWriteCharacteristicValue:           "gatt_write_characteristic_value",
	CmdGATTWriteCharacteristicValueWithoutRsp: "gatt_write_characteristic_value_without_response",
	CmdGATTServerSendNotification:             "gatt_server_send_notification",

	EvtDFUBoot:                        "evt_dfu_boot",
	EvtDFUBootFailure:                 "evt_dfu_boot_failure",
	EvtSystemBoot:                     "evt_system_boot",
	EvtScannerScanReport:              "evt_scanner_scan_report",
	EvtConnectionOpened:               "evt_connection_opened",
	EvtConnectionClosed:               "evt_connection_closed",
	EvtConnectionRSSI:                 "evt_connection_rssi",
	EvtGATTService:                    "evt_gatt_service",
	EvtGATTCharacteristic:             "evt_gatt_characteristic",
	EvtGATTCharacteristicValue:        "evt_gatt_characteristic_value",
	EvtGATTProcedureCompleted:         "evt_gatt_procedure_completed",
	EvtGATTServerAttributeValue:       "evt_gatt_server_attribute_value",
	EvtGATTServerCharacteristicStatus: "evt_gatt_server_characteristic_status",
}
