package tokens

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideStore(db *gorm.DB, cfg *config.Config, logger *logging.Service) (Repository, error) {
	var cipher *Cipher
	if cfg.Security.EncryptionKey != "" {
		c, err := NewCipher(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, err
		}
		cipher = c
	}
	return NewStore(db, cipher, logger), nil
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
)
