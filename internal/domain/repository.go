package domain

type InstanceRepository interface {
	SaveInstance(inst *Instance) error
	ListInstances() ([]Instance, error)
	GetInstance(name string) (*Instance, error)
	DeleteInstance(name string) error
	RenameInstance(oldName, newName, newDir string) error
	UpdateVersion(name, version string, channel Channel) error
	UpdatePorts(name string, gamePort, webPort *int) error
	UpdateStartup(name string, args StartupArgs) error
	SetDegraded(name string, degraded bool) error
	SetOrder(names []string) error
}

type SettingRepository interface {
	GetSetting(key string) (string, error)
	SetSetting(key string, value string) error
	GetPortRange() (int, int, error)
	SetPortRange(start int, end int) error
	ActiveInstance() (string, error)
	SetActiveInstance(name string) error
}

type Repository interface {
	InstanceRepository
	SettingRepository
}
