package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	settingPortRangeStart = "port_range_start"
	settingPortRangeEnd   = "port_range_end"
	settingActiveInstance = "active_instance"

	DefaultPortRangeStart = 5520
	DefaultPortRangeEnd   = 5600
)

type Instance struct {
	Name       string `gorm:"primaryKey"`
	Dir        string
	Version    string
	Channel    string
	GamePort   *int
	WebPort    *int
	Position   int
	Degraded   bool
	MinRAM     int
	MaxRAM     int
	JVMArgs    string
	ServerArgs string
	Launcher   string
	DisableAOT bool
	CreatedAt  time.Time
}

type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

type GormStore struct {
	db *gorm.DB
}

var _ domain.Repository = (*GormStore)(nil)

// sqlLog routes gorm's messages into the process logger.
type sqlLog struct{}

func (sqlLog) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "db").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// NewGormStore opens (or creates) the SQLite database at path and migrates
// the schema. The default port range is seeded on first use.
func NewGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.New(sqlLog{}, gormlogger.Config{
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Warn,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Instance{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	seed := []Setting{
		{Key: settingPortRangeStart, Value: strconv.Itoa(DefaultPortRangeStart)},
		{Key: settingPortRangeEnd, Value: strconv.Itoa(DefaultPortRangeEnd)},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(inst *domain.Instance) *Instance {
	return &Instance{
		Name:       inst.Name,
		Dir:        inst.Dir,
		Version:    inst.Version,
		Channel:    string(inst.Channel),
		GamePort:   inst.GamePort,
		WebPort:    inst.WebPort,
		Position:   inst.Order,
		Degraded:   inst.Degraded,
		MinRAM:     inst.Startup.MinRAM,
		MaxRAM:     inst.Startup.MaxRAM,
		JVMArgs:    inst.Startup.JVMArgs,
		ServerArgs: inst.Startup.ServerArgs,
		Launcher:   inst.Startup.Launcher,
		DisableAOT: inst.Startup.DisableAOT,
		CreatedAt:  inst.CreatedAt,
	}
}

func fromRow(row *Instance) domain.Instance {
	return domain.Instance{
		Name:     row.Name,
		Dir:      row.Dir,
		Version:  row.Version,
		Channel:  domain.Channel(row.Channel),
		GamePort: row.GamePort,
		WebPort:  row.WebPort,
		Order:    row.Position,
		Degraded: row.Degraded,
		Startup: domain.StartupArgs{
			MinRAM:     row.MinRAM,
			MaxRAM:     row.MaxRAM,
			JVMArgs:    row.JVMArgs,
			ServerArgs: row.ServerArgs,
			Launcher:   row.Launcher,
			DisableAOT: row.DisableAOT,
		},
		CreatedAt: row.CreatedAt,
	}
}

// SaveInstance inserts a new instance. Names are unique; inserting an
// existing name returns domain.ErrNameTaken.
func (s *GormStore) SaveInstance(inst *domain.Instance) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Instance{}).Where("name = ?", inst.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrNameTaken
		}
		return tx.Create(toRow(inst)).Error
	})
}

func (s *GormStore) ListInstances() ([]domain.Instance, error) {
	var rows []Instance
	if err := s.db.Order("position asc, name asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	instances := make([]domain.Instance, 0, len(rows))
	for i := range rows {
		instances = append(instances, fromRow(&rows[i]))
	}
	return instances, nil
}

// GetInstance returns nil, nil when no instance has that name.
func (s *GormStore) GetInstance(name string) (*domain.Instance, error) {
	var row Instance
	result := s.db.First(&row, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying instance: %w", result.Error)
	}
	inst := fromRow(&row)
	return &inst, nil
}

func (s *GormStore) DeleteInstance(name string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Instance{}, "name = ?", name).Error; err != nil {
			return err
		}
		return tx.Where("key = ? AND value = ?", settingActiveInstance, name).Delete(&Setting{}).Error
	})
}

// RenameInstance moves the record and the active marker to newName in one
// transaction.
func (s *GormStore) RenameInstance(oldName, newName, newDir string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Instance{}).Where("name = ?", newName).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrNameTaken
		}

		res := tx.Model(&Instance{}).Where("name = ?", oldName).
			Updates(map[string]interface{}{"name": newName, "dir": newDir})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		return tx.Model(&Setting{}).
			Where("key = ? AND value = ?", settingActiveInstance, oldName).
			Update("value", newName).Error
	})
}

func (s *GormStore) UpdateVersion(name, version string, channel domain.Channel) error {
	return s.updateFields(name, map[string]interface{}{"version": version, "channel": string(channel)})
}

func (s *GormStore) UpdatePorts(name string, gamePort, webPort *int) error {
	return s.updateFields(name, map[string]interface{}{"game_port": gamePort, "web_port": webPort})
}

func (s *GormStore) UpdateStartup(name string, args domain.StartupArgs) error {
	return s.updateFields(name, map[string]interface{}{
		"min_ram":     args.MinRAM,
		"max_ram":     args.MaxRAM,
		"jvm_args":    args.JVMArgs,
		"server_args": args.ServerArgs,
		"launcher":    args.Launcher,
		"disable_aot": args.DisableAOT,
	})
}

func (s *GormStore) SetDegraded(name string, degraded bool) error {
	return s.updateFields(name, map[string]interface{}{"degraded": degraded})
}

func (s *GormStore) updateFields(name string, updates map[string]interface{}) error {
	res := s.db.Model(&Instance{}).Where("name = ?", name).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&Instance{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

// SetOrder stores the display position of each name in the given order.
func (s *GormStore) SetOrder(names []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i, name := range names {
			if err := tx.Model(&Instance{}).Where("name = ?", name).Update("position", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// lookup returns the stored value and whether the key exists.
func (s *GormStore) lookup(key string) (string, bool, error) {
	var rows []Setting
	if err := s.db.Where("key = ?", key).Limit(1).Find(&rows).Error; err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

func (s *GormStore) GetSetting(key string) (string, error) {
	v, ok, err := s.lookup(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("setting %q: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (s *GormStore) SetSetting(key, value string) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: key, Value: value}).Error
}

// ActiveInstance returns "" when no instance is active.
func (s *GormStore) ActiveInstance() (string, error) {
	v, _, err := s.lookup(settingActiveInstance)
	return v, err
}

func (s *GormStore) SetActiveInstance(name string) error {
	if name == "" {
		return s.db.Delete(&Setting{}, "key = ?", settingActiveInstance).Error
	}
	return s.SetSetting(settingActiveInstance, name)
}

func (s *GormStore) GetPortRange() (int, int, error) {
	var bounds [2]int
	for i, key := range []string{settingPortRangeStart, settingPortRangeEnd} {
		v, err := s.GetSetting(key)
		if err != nil {
			return 0, 0, err
		}
		if bounds[i], err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("setting %q: %w", key, err)
		}
	}
	return bounds[0], bounds[1], nil
}

// SetPortRange stores both bounds in one transaction.
func (s *GormStore) SetPortRange(start, end int) error {
	if start <= 0 || start > end || end > 65535 {
		return fmt.Errorf("invalid port range %d-%d", start, end)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		store := &GormStore{db: tx}
		if err := store.SetSetting(settingPortRangeStart, strconv.Itoa(start)); err != nil {
			return err
		}
		return store.SetSetting(settingPortRangeEnd, strconv.Itoa(end))
	})
}
