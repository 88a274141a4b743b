package name

// Function is the ISO 11783-1 function code carried in a NAME
type Function uint8

const (
	FunctionEngine                               Function = 0
	FunctionAuxiliaryPowerUnit                   Function = 1
	FunctionElectricPropulsionControl            Function = 2
	FunctionTransmission                         Function = 3
	FunctionBatteryPackMonitor                   Function = 4
	FunctionShiftControl                         Function = 5
	FunctionPowerTakeOffRearOrPrimary            Function = 6
	FunctionSteeringAxle                         Function = 7
	FunctionDrivingAxle                          Function = 8
	FunctionSystemControlBrakes                  Function = 9
	FunctionSteerAxleControlBrakes               Function = 10
	FunctionDriveAxleControlBrakes               Function = 11
	FunctionEngineRetarder                       Function = 12
	FunctionDrivelineRetarder                    Function = 13
	FunctionCruiseControl                        Function = 14
	FunctionFuelSystem                           Function = 15
	FunctionSteeringControl                      Function = 16
	FunctionSteerAxleSuspensionControl           Function = 17
	FunctionDriveAxleSuspensionControl           Function = 18
	FunctionInstrumentCluster                    Function = 19
	FunctionTripRecorder                         Function = 20
	FunctionCabClimateControl                    Function = 21
	FunctionAerodynamicControl                   Function = 22
	FunctionVehicleNavigation                    Function = 23
	FunctionVehicleSecurity                      Function = 24
	FunctionNetworkInterconnectUnit              Function = 25
	FunctionBodyControl                          Function = 26
	FunctionPowerTakeOffFrontOrSecondary         Function = 27
	FunctionOffVehicleGateway                    Function = 28
	FunctionVirtualTerminal                      Function = 29
	FunctionManagementComputerOne                Function = 30
	FunctionPropulsionBatteryCharger             Function = 31
	FunctionHeadwayControl                       Function = 32
	FunctionSystemMonitor                        Function = 33
	FunctionHydraulicPumpControl                 Function = 34
	FunctionSystemControlSuspension              Function = 35
	FunctionSystemControlPneumatic               Function = 36
	FunctionCabController                        Function = 37
	FunctionTirePressureControl                  Function = 38
	FunctionIgnitionControl                      Function = 39
	FunctionSeatControl                          Function = 40
	FunctionOperatorControlsLighting             Function = 41
	FunctionWaterPumpControl                     Function = 42
	FunctionTransmissionDisplay                  Function = 43
	FunctionExhaustEmissionControl               Function = 44
	FunctionVehicleDynamicStabilityControl       Function = 45
	FunctionOilSystemMonitor                     Function = 46
	FunctionInformationSystemControl             Function = 47
	FunctionRampControl                          Function = 48
	FunctionClutchConverterControl               Function = 49
	FunctionAuxiliaryHeater                      Function = 50
	FunctionForwardLookingCollisionWarningSystem Function = 51
	FunctionChassisControl                       Function = 52
	FunctionAlternatorElectricalChargingSystem   Function = 53
	FunctionCommunicationsCellular               Function = 54
	FunctionCommunicationsSatellite              Function = 55
	FunctionCommunicationsRadio                  Function = 56
	FunctionOperatorControlsSteeringColumn       Function = 57
	FunctionFanDriveControl                      Function = 58
	FunctionStarter                              Function = 59
	FunctionCabDisplayCab                        Function = 60
	FunctionFileServerOrPrinter                  Function = 61
	FunctionOnboardDiagnosticUnit                Function = 62
	FunctionEngineValveController                Function = 63
	FunctionEnduranceBraking                     Function = 64
	FunctionGasFlowMeasurement                   Function = 65
	FunctionIOController                         Function = 66
	FunctionElectricalSystemController           Function = 67
	FunctionReserved                             Function = 68
	FunctionMaxFunctionCode                      Function = 127
)

var functionNames = map[Function]string{
	FunctionEngine:                               "Engine",
	FunctionAuxiliaryPowerUnit:                   "AuxiliaryPowerUnit",
	FunctionElectricPropulsionControl:            "ElectricPropulsionControl",
	FunctionTransmission:                         "Transmission",
	FunctionBatteryPackMonitor:                   "BatteryPackMonitor",
	FunctionShiftControl:                         "ShiftControl",
	FunctionPowerTakeOffRearOrPrimary:            "PowerTakeOffRearOrPrimary",
	FunctionSteeringAxle:                         "SteeringAxle",
	FunctionDrivingAxle:                          "DrivingAxle",
	FunctionSystemControlBrakes:                  "SystemControlBrakes",
	FunctionSteerAxleControlBrakes:               "SteerAxleControlBrakes",
	FunctionDriveAxleControlBrakes:               "DriveAxleControlBrakes",
	FunctionEngineRetarder:                       "EngineRetarder",
	FunctionDrivelineRetarder:                    "DrivelineRetarder",
	FunctionCruiseControl:                        "CruiseControl",
	FunctionFuelSystem:                           "FuelSystem",
	FunctionSteeringControl:                      "SteeringControl",
	FunctionSteerAxleSuspensionControl:           "SteerAxleSuspensionControl",
	FunctionDriveAxleSuspensionControl:           "DriveAxleSuspensionControl",
	FunctionInstrumentCluster:                    "InstrumentCluster",
	FunctionTripRecorder:                         "TripRecorder",
	FunctionCabClimateControl:                    "CabClimateControl",
	FunctionAerodynamicControl:                   "AerodynamicControl",
	FunctionVehicleNavigation:                    "VehicleNavigation",
	FunctionVehicleSecurity:                      "VehicleSecurity",
	FunctionNetworkInterconnectUnit:              "NetworkInterconnectUnit",
	FunctionBodyControl:                          "BodyControl",
	FunctionPowerTakeOffFrontOrSecondary:         "PowerTakeOffFrontOrSecondary",
	FunctionOffVehicleGateway:                    "OffVehicleGateway",
	FunctionVirtualTerminal:                      "VirtualTerminal",
	FunctionManagementComputerOne:                "ManagementComputerOne",
	FunctionPropulsionBatteryCharger:             "PropulsionBatteryCharger",
	FunctionHeadwayControl:                       "HeadwayControl",
	FunctionSystemMonitor:                        "SystemMonitor",
	FunctionHydraulicPumpControl:                 "HydraulicPumpControl",
	FunctionSystemControlSuspension:              "SystemControlSuspension",
	FunctionSystemControlPneumatic:               "SystemControlPneumatic",
	FunctionCabController:                        "CabController",
	FunctionTirePressureControl:                  "TirePressureControl",
	FunctionIgnitionControl:                      "IgnitionControl",
	FunctionSeatControl:                          "SeatControl",
	FunctionOperatorControlsLighting:             "OperatorControlsLighting",
	FunctionWaterPumpControl:                     "WaterPumpControl",
	FunctionTransmissionDisplay:                  "TransmissionDisplay",
	FunctionExhaustEmissionControl:               "ExhaustEmissionControl",
	FunctionVehicleDynamicStabilityControl:       "VehicleDynamicStabilityControl",
	FunctionOilSystemMonitor:                     "OilSystemMonitor",
	FunctionInformationSystemControl:             "InformationSystemControl",
	FunctionRampControl:                          "RampControl",
	FunctionClutchConverterControl:               "ClutchConverterControl",
	FunctionAuxiliaryHeater:                      "AuxiliaryHeater",
	FunctionForwardLookingCollisionWarningSystem: "ForwardLookingCollisionWarningSystem",
	FunctionChassisControl:                       "ChassisControl",
	FunctionAlternatorElectricalChargingSystem:   "AlternatorElectricalChargingSystem",
	FunctionCommunicationsCellular:               "CommunicationsCellular",
	FunctionCommunicationsSatellite:              "CommunicationsSatellite",
	FunctionCommunicationsRadio:                  "CommunicationsRadio",
	FunctionOperatorControlsSteeringColumn:       "OperatorControlsSteeringColumn",
	FunctionFanDriveControl:                      "FanDriveControl",
	FunctionStarter:                              "Starter",
	FunctionCabDisplayCab:                        "CabDisplayCab",
	FunctionFileServerOrPrinter:                  "FileServerOrPrinter",
	FunctionOnboardDiagnosticUnit:                "OnboardDiagnosticUnit",
	FunctionEngineValveController:                "EngineValveController",
	FunctionEnduranceBraking:                     "EnduranceBraking",
	FunctionGasFlowMeasurement:                   "GasFlowMeasurement",
	FunctionIOController:                         "IOController",
	FunctionElectricalSystemController:           "ElectricalSystemController",
}

// String returns string representation of Function
func (f Function) String() string {
	if s, ok := functionNames[f]; ok {
		return s
	}
	if f >= FunctionReserved && f <= FunctionMaxFunctionCode {
		return "Reserved"
	}
	return "Unknown"
}
