// Package cli implements the fleet command-line interface.
//
// Each command is a package-level cobra.Command registered from init().
// Commands parse their flags, then call withApp, which loads and
// validates the config, opens the inventory store and builds an
// inventory.Service. The command body works against that service and
// prints either human output or, with --json, a JSONEnvelope.
//
// # Command Structure
//
//	fleet sweep [cidr]                 - ping a network and record transitions
//	fleet recheck <selection>          - ping known hosts again
//	fleet hosts [selection]            - list the inventory
//	fleet host add|rm|user|import      - maintain inventory rows
//	fleet tag add|rm|ls                - group hosts
//	fleet select [selection]           - preview, name and rebuild selections
//	fleet exec <selection> -- <cmd>    - run a command over SSH
//	fleet script <selection> <file>    - upload and run a script
//	fleet deploy <selection>           - install the fleet key
//	fleet url add|rm|ls|check          - monitor HTTP endpoints
//	fleet snmp <selection> <object>... - poll SNMP agents
//	fleet config init|show             - manage fleet.yaml
//
// # Flag Handling
//
// Global flags (--config, --json, --debug, --no-color, --metrics-file)
// live on the root command. Commands that fan out to many hosts take
// --chunk-size and --timeout through TuningFlags, which override the
// matching config section before validation.
package cli
