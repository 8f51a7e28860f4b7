package config

const (
	defaultAddress     = "pipe:/var/run/conveyor/conveyord.socket"
	defaultPIDFile     = "/var/run/conveyor/conveyord.pid"
	defaultSpoolDir    = "~/.local/share/conveyor"
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"
	defaultSliceWorks  = 2
	defaultClientWorks = 4

	defaultMiracleGruePath   = "/usr/bin/miracle_grue"
	defaultMiracleGrueConfig = "/etc/conveyor/miracle.config"
	defaultMiracleGrueName   = "MiracleGrue"

	defaultSkeinforgePath       = "/usr/share/skeinforge/skeinforge_application/skeinforge.py"
	defaultSkeinforgeProfileDir = "/usr/share/skeinforge/prefs"
	defaultSkeinforgeProfile    = "Replicator slicing"
	defaultSkeinforgeName       = "Skeinforge"

	defaultMakerBotProfileDir = "/usr/share/makerbot/profiles"
	defaultMakerBotMachine    = "Replicator"
	defaultMakerBotBaudRate   = 115200
	defaultMakerBotName       = "MakerBotDriver"

	defaultInfillDensity       = 0.1
	defaultLayerHeight         = 0.27
	defaultShells              = 1
	defaultExtruderTemperature = 230.0
	defaultPlatformTemperature = 110.0
	defaultPrintSpeed          = 80.0
	defaultTravelSpeed         = 100.0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Common: Common{
			Address: defaultAddress,
			PIDFile: defaultPIDFile,
		},
		MiracleGrue: MiracleGrue{
			Name:   defaultMiracleGrueName,
			Path:   defaultMiracleGruePath,
			Config: defaultMiracleGrueConfig,
		},
		Skeinforge: Skeinforge{
			Name:       defaultSkeinforgeName,
			Path:       defaultSkeinforgePath,
			ProfileDir: defaultSkeinforgeProfileDir,
			Profile:    defaultSkeinforgeProfile,
		},
		MakerBot: MakerBot{
			Name:       defaultMakerBotName,
			ProfileDir: defaultMakerBotProfileDir,
			Machine:    defaultMakerBotMachine,
			BaudRate:   defaultMakerBotBaudRate,
		},
		Server: Server{
			SliceWorkers: defaultSliceWorks,
			SpoolDir:     defaultSpoolDir,
			LogLevel:     defaultLogLevel,
			LogFormat:    defaultLogFormat,
			ChDir:        true,
		},
		Client: Client{
			Workers:  defaultClientWorks,
			LogLevel: defaultLogLevel,
			Slicing: Slicing{
				Raft:                false,
				Support:             false,
				InfillDensity:       defaultInfillDensity,
				LayerHeight:         defaultLayerHeight,
				Shells:              defaultShells,
				ExtruderTemperature: defaultExtruderTemperature,
				PlatformTemperature: defaultPlatformTemperature,
				PrintSpeed:          defaultPrintSpeed,
				TravelSpeed:         defaultTravelSpeed,
			},
		},
	}
}
