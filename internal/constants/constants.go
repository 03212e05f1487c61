package constants

const (
	AppName      = "gamevault"
	KeystoreFile = "keystore.json"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	// AAD for the keystore envelope (must match on decrypt).
	KeystoreAAD = "gamevault:keystore:ed25519:v1"

	EnvKeystorePassword = "GAMEVAULT_KEYSTORE_PASSWORD"
)

// Move module layout of the license registry.
const (
	LicenseModule        = "license"
	RegistryResourceName = "GameRegistry"
	GameInfoStruct       = "GameInfo"

	FnInitializeRegistry = "initialize_registry"
	FnRegisterGame       = "register_game"
	FnSetGameActive      = "set_game_active"
	FnBuyGameLicense     = "buy_game_license"
	FnTransferLicense    = "transfer_license"

	ViewHasGameLicense = "has_game_license"
	ViewGetUserLicense = "get_user_licenses"
	ViewGetAllGames    = "get_all_games"
)

// Framework addresses and types.
const (
	CoinBalanceView = "0x1::coin::balance"
	NativeCoinType  = "0x1::aptos_coin::AptosCoin"
)
