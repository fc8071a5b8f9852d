package marketplaceConfig

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"
)

const (
	EnvPrefix = "FORGE_"

	Debug = "debug"
)

const (
	StorageTypeMemory = "memory"
	StorageTypeBadger = "badger"
)

var supportedStorageTypes = []string{StorageTypeMemory, StorageTypeBadger}

// BadgerConfig tunes the BadgerDB backend.
type BadgerConfig struct {
	Dir              string `json:"dir" yaml:"dir"`
	InMemory         bool   `json:"inMemory" yaml:"inMemory"`
	ValueLogFileSize int64  `json:"valueLogFileSize" yaml:"valueLogFileSize"`
}

func (c *BadgerConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if !c.InMemory && c.Dir == "" {
		allErrors = append(allErrors, field.Required(path.Child("dir"), "dir is required unless inMemory is set"))
	}
	return allErrors
}

type StorageConfig struct {
	Type   string        `json:"type" yaml:"type"`
	Badger *BadgerConfig `json:"badger,omitempty" yaml:"badger,omitempty"`
}

func (c *StorageConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if !slices.Contains(supportedStorageTypes, c.Type) {
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), c.Type, supportedStorageTypes))
	}
	if c.Type == StorageTypeBadger {
		if c.Badger == nil {
			allErrors = append(allErrors, field.Required(path.Child("badger"), "badger settings are required for the badger storage type"))
		} else {
			allErrors = append(allErrors, c.Badger.Validate(path.Child("badger"))...)
		}
	}
	return allErrors
}

type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

func (c *ServerConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if c.Port <= 0 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(path.Child("port"), c.Port, "port must be between 1 and 65535"))
	}
	return allErrors
}

// GenesisAllocation seeds a spendable balance at startup. Funding accounts
// is otherwise the ledger environment's concern, not the state machine's.
type GenesisAllocation struct {
	Address string `json:"address" yaml:"address"`
	Amount  uint64 `json:"amount" yaml:"amount"`
}

func (a *GenesisAllocation) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if !common.IsHexAddress(a.Address) {
		allErrors = append(allErrors, field.Invalid(path.Child("address"), a.Address, "must be a hex address"))
	}
	return allErrors
}

type MarketplaceConfig struct {
	Debug   bool                `json:"debug" yaml:"debug"`
	Storage StorageConfig       `json:"storage" yaml:"storage"`
	Server  ServerConfig        `json:"server" yaml:"server"`
	Genesis []GenesisAllocation `json:"genesis,omitempty" yaml:"genesis,omitempty"`
}

func NewMarketplaceConfig() *MarketplaceConfig {
	return &MarketplaceConfig{
		Storage: StorageConfig{Type: StorageTypeMemory},
		Server:  ServerConfig{Port: 8545},
	}
}

func NewMarketplaceConfigFromYamlBytes(data []byte) (*MarketplaceConfig, error) {
	cfg := NewMarketplaceConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal marketplace config")
	}
	return cfg, nil
}

func (c *MarketplaceConfig) Validate() error {
	var allErrors field.ErrorList
	allErrors = append(allErrors, c.Storage.Validate(field.NewPath("storage"))...)
	allErrors = append(allErrors, c.Server.Validate(field.NewPath("server"))...)
	for i := range c.Genesis {
		allErrors = append(allErrors, c.Genesis[i].Validate(field.NewPath("genesis").Index(i))...)
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
