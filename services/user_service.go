package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
	"github.com/siparmail/sipar-server/util"
)

// blob stores cap bulk deletes, S3 at 1000 keys per call
const blobDeleteChunk = 1000

// UserService is the account lifecycle manager: signup, credential
// changes, admin mutations and the cascading delete.
type UserService struct {
	userRepo       repository.Repository
	mappingRepo    repository.Repository
	tokenService   *TokenService
	aliasService   *AliasService
	messageService *MessageService
	env            *types.Environment
}

func NewUserService(dbSelector repository.DBSelector, env *types.Environment) *UserService {
	userRepo, uErr := dbSelector.ChooseDB(repository.Users)
	if uErr != nil {
		panic(uErr)
	}
	mappingRepo, mErr := dbSelector.ChooseDB(repository.EmailMapping)
	if mErr != nil {
		panic(mErr)
	}
	return &UserService{
		userRepo:       userRepo,
		mappingRepo:    mappingRepo,
		tokenService:   NewTokenService(dbSelector),
		aliasService:   NewAliasService(dbSelector),
		messageService: NewMessageService(dbSelector),
		env:            env,
	}
}

// CreateUser registers a new account. The very first account of the
// installation is granted the admin role; everyone after that is a
// regular user with the configured default alias limit. Username and
// email uniqueness both surface as types.ErrConflict.
func (us *UserService) CreateUser(username, email, password string) (*types.Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !util.IsValidUsername(username) {
		return nil, types.ErrBadRequest
	}
	normalizedEmail, eErr := util.NormalizeEmail(email)
	if eErr != nil {
		return nil, types.ErrBadRequest
	}

	salt, hash, iterations, dErr := util.DeriveNewCredential(password)
	if dErr != nil {
		return nil, dErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	role := types.RoleUser
	empty, cErr := us.isUsersEmpty(ctx)
	if cErr != nil {
		return nil, cErr
	}
	if empty {
		role = types.RoleAdmin
	}

	now := time.Now().UTC().UnixMilli()
	account := &types.Account{
		Username:   username,
		Email:      normalizedEmail,
		Salt:       salt,
		Hash:       hash,
		Iterations: iterations,
		Role:       role,
		AliasLimit: global.Conf.Sipar.DefaultAliasLimit,
		Enabled:    true,
		Created:    now,
	}
	if sErr := us.userRepo.Save(ctx, username, account); sErr != nil {
		return nil, sErr
	}

	mapping := &types.EmailMapping{
		Email:    normalizedEmail,
		Username: username,
	}
	if mErr := us.mappingRepo.Save(ctx, normalizedEmail, mapping); mErr != nil {
		// roll the half-created account back so the username can be retried
		if delErr := us.userRepo.Delete(ctx, username); delErr != nil {
			level.Error(global.Logger).Log("msg", "failed to roll back account after mapping conflict", "username", username, "error", delErr.Error())
		}
		return nil, mErr
	}
	return account, nil
}

// GetByUsername loads one account.
func (us *UserService) GetByUsername(username string) (*types.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	return us.getAccount(ctx, strings.ToLower(username))
}

// FindByEmail resolves an email address to its account through the
// mapping database.
func (us *UserService) FindByEmail(email string) (*types.Account, error) {
	normalizedEmail, eErr := util.NormalizeEmail(email)
	if eErr != nil {
		return nil, types.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	resp, gErr := us.mappingRepo.GetByID(ctx, normalizedEmail)
	if gErr != nil {
		return nil, gErr
	}
	var mapping types.EmailMapping
	if mErr := repository.MapToObject(resp, &mapping); mErr != nil {
		return nil, mErr
	}
	return us.getAccount(ctx, mapping.Username)
}

// Authenticate verifies a username-or-email plus password pair. The
// error never distinguishes wrong user from wrong password; a disabled
// account fails with ErrDisabled; a credential hashed with an
// unsupported work factor surfaces ErrUnsupportedIterations so the
// caller can demand a reset.
func (us *UserService) Authenticate(id, password string) (*types.Account, error) {
	var account *types.Account
	var err error
	if strings.Contains(id, "@") {
		account, err = us.FindByEmail(id)
	} else {
		account, err = us.GetByUsername(id)
	}
	if err != nil {
		return nil, types.ErrNotAuthorized
	}

	ok, vErr := util.VerifyPassword(password, account.Salt, account.Hash, account.Iterations)
	if vErr != nil {
		if vErr == types.ErrUnsupportedIterations {
			return nil, vErr
		}
		return nil, types.ErrNotAuthorized
	}
	if !ok {
		return nil, types.ErrNotAuthorized
	}
	if !account.Enabled {
		return nil, types.ErrDisabled
	}
	return account, nil
}

// UpdatePassword replaces the account credential with a freshly salted
// derivation of the new password.
func (us *UserService) UpdatePassword(account *types.Account, newPassword string) error {
	salt, hash, iterations, dErr := util.DeriveNewCredential(newPassword)
	if dErr != nil {
		return dErr
	}
	account.Salt = salt
	account.Hash = hash
	account.Iterations = iterations
	account.Modified = time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	return us.userRepo.Save(ctx, account.Username, account)
}

// Patch applies admin mutations (alias limit, enablement) to the
// target account. Disabling takes effect on the target's very next
// request because session verification re-reads the enabled flag.
func (us *UserService) Patch(target string, input *types.InputPatchUser) (*types.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	account, gErr := us.getAccount(ctx, strings.ToLower(target))
	if gErr != nil {
		return nil, gErr
	}
	if input.AliasLimit != nil {
		if *input.AliasLimit < 0 {
			return nil, types.ErrBadRequest
		}
		// quota reductions never retroactively disable existing aliases
		account.AliasLimit = *input.AliasLimit
	}
	if input.Disabled != nil {
		account.Enabled = !*input.Disabled
	}
	account.Modified = time.Now().UTC().UnixMilli()
	if sErr := us.userRepo.Save(ctx, account.Username, account); sErr != nil {
		return nil, sErr
	}
	return account, nil
}

// ListAccounts returns all accounts for the admin overview.
func (us *UserService) ListAccounts() ([]*types.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	result, fErr := findDocs(ctx, us.userRepo, &findQuery{
		Selector: map[string]interface{}{"username": map[string]interface{}{"$gt": nil}},
		Limit:    1000,
	})
	if fErr != nil {
		return nil, fErr
	}
	accounts := make([]*types.Account, 0, len(result.Docs))
	for _, raw := range result.Docs {
		var account types.Account
		if uErr := json.Unmarshal(raw, &account); uErr != nil {
			return nil, uErr
		}
		accounts = append(accounts, &account)
	}
	return accounts, nil
}

// CountEnabledAliases is exposed for the admin listing.
func (us *UserService) CountEnabledAliases(username string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	return us.aliasService.CountEnabled(ctx, username)
}

// DeleteCascade removes the target account together with every record
// that exists only because the account exists: tokens, email records,
// aliases, the account row and the email mapping, in that order. Each
// step is idempotent, so a crash mid-sequence is repaired by simply
// re-driving the delete. Archived blobs are cleaned up afterwards as a
// fire-and-forget task; the relational footprint is authoritative and
// a failed blob cleanup is a bounded, accepted leak.
func (us *UserService) DeleteCascade(admin *types.Account, target string) error {
	target = strings.ToLower(target)
	if target == admin.Username {
		return types.ErrSelfTarget
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	account, gErr := us.getAccount(ctx, target)
	if gErr != nil {
		return gErr
	}
	if account.Role == types.RoleAdmin {
		admins, aErr := us.countAdmins(ctx)
		if aErr != nil {
			return aErr
		}
		if admins <= 1 {
			return types.ErrLastAdmin
		}
	}

	if tErr := us.tokenService.DeleteAllByUser(ctx, target); tErr != nil {
		return tErr
	}
	rawKeys, mErr := us.messageService.DeleteAllByUser(ctx, target)
	if mErr != nil {
		return mErr
	}
	if aErr := us.aliasService.DeleteAllByUser(ctx, target); aErr != nil {
		return aErr
	}
	if dErr := us.userRepo.Delete(ctx, target); dErr != nil && dErr != types.ErrNotFound {
		return dErr
	}
	if dErr := us.mappingRepo.Delete(ctx, account.Email); dErr != nil && dErr != types.ErrNotFound {
		return dErr
	}

	us.enqueueBlobDeletes(rawKeys)
	return nil
}

// chunkKeys splits blob keys into batches of at most size entries.
func chunkKeys(keys []string, size int) [][]string {
	chunks := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

// enqueueBlobDeletes schedules best-effort archive cleanup in chunks
// the blob store accepts. Failures are logged, never propagated.
func (us *UserService) enqueueBlobDeletes(rawKeys []string) {
	if len(rawKeys) == 0 || us.env == nil || us.env.TaskClient == nil {
		return
	}
	for _, chunk := range chunkKeys(rawKeys, blobDeleteChunk) {
		task, tErr := types.NewDeleteBlobsTask(&types.DeleteBlobsTask{Keys: chunk})
		if tErr != nil {
			level.Error(global.Logger).Log("msg", "failed to create blob delete task", "error", tErr.Error())
			continue
		}
		if _, qErr := us.env.TaskClient.Enqueue(task, asynq.MaxRetry(3)); qErr != nil {
			level.Error(global.Logger).Log("msg", "failed to enqueue blob delete task", "error", qErr.Error())
		}
	}
}

func (us *UserService) getAccount(ctx context.Context, username string) (*types.Account, error) {
	resp, gErr := us.userRepo.GetByID(ctx, username)
	if gErr != nil {
		return nil, gErr
	}
	var account types.Account
	if mErr := repository.MapToObject(resp, &account); mErr != nil {
		return nil, mErr
	}
	return &account, nil
}

// isUsersEmpty reports whether no account was ever created. The users
// database also holds index design documents, so a raw _all_docs total
// overcounts; the mango probe matches account documents only.
func (us *UserService) isUsersEmpty(ctx context.Context) (bool, error) {
	result, fErr := findDocs(ctx, us.userRepo, &findQuery{
		Selector: map[string]interface{}{"username": map[string]interface{}{"$gt": nil}},
		Fields:   []string{"_id"},
		Limit:    1,
	})
	if fErr != nil {
		return false, fErr
	}
	return len(result.Docs) == 0, nil
}

func (us *UserService) countAdmins(ctx context.Context) (int, error) {
	result, fErr := findDocs(ctx, us.userRepo, &findQuery{
		Selector: map[string]interface{}{"role": types.RoleAdmin},
		Fields:   []string{"_id"},
		Limit:    10,
		UseIndex: "user-role-index",
	})
	if fErr != nil {
		return 0, fErr
	}
	return len(result.Docs), nil
}
