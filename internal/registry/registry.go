// Package registry manages the singleton GameRegistry resource that every
// listing and license operation depends on.
package registry

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

const opInitialize = "initialize registry"

type State int32

const (
	StateUnknown State = iota
	StateChecking
	StateUninitialized
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Handles are the table handles embedded in the registry resource.
type Handles struct {
	Games        string
	DevGames     string
	UserLicenses string
}

// Info is a snapshot of the registry for status reporting.
type Info struct {
	Module        string `json:"module"`
	ResourceType  string `json:"resource_type"`
	State         string `json:"state"`
	Initialized   bool   `json:"initialized"`
	NextGameID    uint64 `json:"next_game_id,omitempty"`
	NextLicenseID uint64 `json:"next_license_id,omitempty"`
}

type resourceData struct {
	Games         ledger.TableHandle `json:"games"`
	DevGames      ledger.TableHandle `json:"dev_games"`
	UserLicenses  ledger.TableHandle `json:"user_licenses"`
	NextGameID    codec.U64          `json:"next_game_id"`
	NextLicenseID codec.U64          `json:"next_license_id"`
}

type Manager struct {
	gw     ledger.Gateway
	signer signer.Signer
	module string

	// ensureMu keeps one process from racing itself into two initialize
	// transactions. Other clients are handled by initialize-or-confirm.
	ensureMu sync.Mutex
	state    atomic.Int32
}

// New builds a manager for the module published at moduleAddress. s may be
// nil for read-only use.
func New(gw ledger.Gateway, s signer.Signer, moduleAddress string) (*Manager, error) {
	if gw == nil {
		return nil, errors.New("registry: gateway is nil")
	}
	module, err := codec.NormalizeAddress(moduleAddress)
	if err != nil {
		return nil, errors.Wrap(err, "registry: module address")
	}
	if s == nil {
		s = signer.Unavailable{}
	}
	return &Manager{gw: gw, signer: s, module: module}, nil
}

func (m *Manager) Gateway() ledger.Gateway { return m.gw }

func (m *Manager) Signer() signer.Signer { return m.signer }

func (m *Manager) ModuleAddress() string { return m.module }

func (m *Manager) ResourceType() string {
	return m.StructType(constants.RegistryResourceName)
}

// StructType returns "<module>::license::<name>".
func (m *Manager) StructType(name string) string {
	return m.module + "::" + constants.LicenseModule + "::" + name
}

// Function returns the fully qualified license module function.
func (m *Manager) Function(name string) string {
	return ledger.FunctionID(m.module, constants.LicenseModule, name)
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Status is a read-only existence check. An absent registry is (false, nil);
// anything else that prevents the read is RegistryUnavailable.
func (m *Manager) Status(ctx context.Context) (bool, error) {
	_, err := m.read(ctx)
	switch {
	case err == nil:
		m.setState(StateInitialized)
		return true, nil
	case errors.Is(err, ledger.ErrNotFound):
		m.setState(StateUninitialized)
		return false, nil
	default:
		return false, &vaulterr.RegistryUnavailable{Cause: err}
	}
}

// Describe reads the registry without initializing it.
func (m *Manager) Describe(ctx context.Context) (Info, error) {
	info := Info{Module: m.module, ResourceType: m.ResourceType()}

	data, err := m.read(ctx)
	switch {
	case err == nil:
		m.setState(StateInitialized)
		info.Initialized = true
		info.NextGameID = uint64(data.NextGameID)
		info.NextLicenseID = uint64(data.NextLicenseID)
	case errors.Is(err, ledger.ErrNotFound):
		m.setState(StateUninitialized)
	default:
		return info, &vaulterr.RegistryUnavailable{Cause: err}
	}
	info.State = m.State().String()
	return info, nil
}

// EnsureInitialized makes sure the registry exists, creating it if needed.
// Calling it on an initialized registry costs one read and submits nothing.
func (m *Manager) EnsureInitialized(ctx context.Context) error {
	_, err := m.ensure(ctx)
	return err
}

// Handles ensures the registry and returns its table handles, read fresh
// on every call.
func (m *Manager) Handles(ctx context.Context) (Handles, error) {
	data, err := m.ensure(ctx)
	if err != nil {
		return Handles{}, err
	}

	h := Handles{
		Games:        data.Games.Handle,
		DevGames:     data.DevGames.Handle,
		UserLicenses: data.UserLicenses.Handle,
	}
	if h.Games == "" || h.DevGames == "" {
		return Handles{}, &vaulterr.RegistryUnavailable{
			Cause: &vaulterr.DecodeError{Field: "registry table handles", Cause: errors.New("missing handle")},
		}
	}
	return h, nil
}

func (m *Manager) ensure(ctx context.Context) (*resourceData, error) {
	m.ensureMu.Lock()
	defer m.ensureMu.Unlock()

	m.setState(StateChecking)
	data, err := m.read(ctx)
	if err == nil {
		m.setState(StateInitialized)
		return data, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		m.setState(StateUnknown)
		return nil, &vaulterr.RegistryUnavailable{Cause: err}
	}

	m.setState(StateUninitialized)
	if !signer.Ready(m.signer) {
		return nil, &vaulterr.RegistryUnavailable{Cause: errors.New("registry is not initialized and no signer is configured")}
	}

	m.setState(StateInitializing)
	log.Info("initializing license registry", "module", m.module, "sender", m.signer.Address())
	initErr := m.initialize(ctx)

	// Initialize-or-confirm: whoever created it, the resource existing now
	// is success.
	data, err = m.read(ctx)
	if err == nil {
		if initErr != nil {
			log.Info("license registry was initialized by another party", "module", m.module, "init_error", initErr)
		}
		m.setState(StateInitialized)
		return data, nil
	}

	m.setState(StateUninitialized)
	if initErr != nil {
		classified := vaulterr.Classify(opInitialize, initErr)
		if vaulterr.Silent(classified) {
			return nil, classified
		}
		log.Error("license registry initialization failed", "module", m.module, "error", initErr)
		return nil, &vaulterr.RegistryUnavailable{Cause: classified}
	}
	return nil, &vaulterr.RegistryUnavailable{Cause: errors.Wrap(err, "registry still absent after confirmed initialization")}
}

func (m *Manager) initialize(ctx context.Context) error {
	pending, err := m.signer.SignAndSubmit(ctx, ledger.TransactionIntent{
		Function:      m.Function(constants.FnInitializeRegistry),
		TypeArguments: []string{},
		Arguments:     []any{},
	})
	if err != nil {
		return err
	}
	if _, err := m.gw.WaitForTransaction(ctx, pending.Hash); err != nil {
		return err
	}
	log.Info("license registry initialized", "module", m.module, "hash", pending.Hash)
	return nil
}

func (m *Manager) read(ctx context.Context) (*resourceData, error) {
	raw, err := m.gw.GetResource(ctx, m.module, m.ResourceType())
	if err != nil {
		return nil, err
	}
	var data resourceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &vaulterr.DecodeError{Field: "registry resource", Cause: err}
	}
	return &data, nil
}
