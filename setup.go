package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

// Configure DB Repositories and create DB Selector
func ConfigDBSelector() repository.DBSelector {
	// configure Repository (couchDB)
	repoUrl := global.Conf.CouchDB.Scheme + "://" + global.Conf.CouchDB.Host + ":" + strconv.Itoa(global.Conf.CouchDB.Port)
	userRepo, userRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Users, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	mappingRepo, mappingRepoErr := repository.NewCouchDBRepository(repoUrl, repository.EmailMapping, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	tokenRepo, tokenRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Tokens, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	aliasRepo, aliasRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Aliases, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	emailRepo, emailRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Emails, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)

	repoErr := errors.Join(userRepoErr, mappingRepoErr, tokenRepoErr, aliasRepoErr, emailRepoErr)
	if repoErr != nil {
		global.Logger.Log("error", "Failed to create repositories", "error", repoErr.Error())
		panic(repoErr)
	}

	// REPOSITORY definitions
	dbSelector := repository.NewCouchDBSelector()
	dbSelector.AddDB(userRepo)
	dbSelector.AddDB(mappingRepo)
	dbSelector.AddDB(tokenRepo)
	dbSelector.AddDB(aliasRepo)
	dbSelector.AddDB(emailRepo)

	return dbSelector
}

func ConfigDBIndexing(dbSelector *repository.CouchDBSelector, environment *types.Environment) {
	// CREATE REQUIRED SERVICES
	tokenService := services.NewTokenService(dbSelector)

	// Create INDEXES
	userRepo, uErr := dbSelector.ChooseDB(repository.Users)
	if uErr != nil {
		panic(uErr)
	}
	tokenRepo, tErr := dbSelector.ChooseDB(repository.Tokens)
	if tErr != nil {
		panic(tErr)
	}
	aliasRepo, aErr := dbSelector.ChooseDB(repository.Aliases)
	if aErr != nil {
		panic(aErr)
	}
	emailRepo, eErr := dbSelector.ChooseDB(repository.Emails)
	if eErr != nil {
		panic(eErr)
	}

	idxErr := errors.Join(
		repository.CreateUserRoleIndex(userRepo),
		repository.CreateTokenUserIndex(tokenRepo),
		repository.CreateAliasUserIndex(aliasRepo),
		repository.CreateEmailUserAliasIndex(emailRepo),
	)
	if idxErr != nil {
		global.Logger.Log("error", "Failed to create indexes", "error", idxErr.Error())
		panic(idxErr)
	}

	// Create DESIGN DOCUMENTS
	// view over token expiry timestamps for the background purge
	if dErr := repository.CreateDesign_ExpiredTokens(repository.Tokens, "token", "expired"); dErr != nil {
		global.Logger.Log("error", "Failed to create token design document", "error", dErr.Error())
		panic(dErr)
	}

	// cron jobs
	environment.Cron.AddFunc("@every 5m", tokenService.PurgeExpired) // remove expired tokens every 5 minutes
	environment.Cron.Start()
	go tokenService.PurgeExpired() // run once on startup
}

func ConfigS3Storage(conf *global.Config, env *types.Environment) {
	if conf.Storage.Bucket == "" {
		global.Logger.Log("msg", "no S3 bucket configured, raw message archival disabled")
		return
	}
	// configure S3 storage
	credentials := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(conf.Storage.Key, conf.Storage.Secret, ""))
	awsConf, err := config.LoadDefaultConfig(context.TODO(), config.WithCredentialsProvider(credentials), config.WithRegion(conf.Storage.Region))
	if err != nil {
		panic(err)
	}
	s3Client := s3.NewFromConfig(awsConf)
	uploader := manager.NewUploader(s3Client)

	env.S3Client = s3Client
	env.AddS3Uploader(uploader)
}
