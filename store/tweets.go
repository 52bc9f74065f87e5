package store

import (
	"encoding/json"

	"github.com/openflock/flockbase/model"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// tweetRecord is one tweet converted for insertion: the row, its entity
// child rows, and the user ids to anchor alongside it.
type tweetRecord struct {
	row      *model.Tweet
	mentions []model.TweetMention
	hashtags []model.TweetHashtag
	urls     []model.TweetUrl
	media    []model.TweetMedia
	symbols  []model.TweetSymbol
	userIds  []int64
}

// SaveTweets inserts fetched tweets plus their entity rows, skipping ids
// already stored: tweets are immutable, so re-fetching a persisted id
// writes nothing, children included. Authors and mentioned users are
// anchored in the same transaction. Returns how many tweets were written.
func (store *Store) SaveTweets(tweets []twitter.Tweet) (int, error) {
	if len(tweets) == 0 {
		return 0, nil
	}
	records := make([]*tweetRecord, 0, len(tweets))
	candidates := make([]int64, 0, len(tweets))
	seen := make(map[int64]bool, len(tweets))
	for i := range tweets {
		if seen[tweets[i].Id] {
			continue
		}
		seen[tweets[i].Id] = true
		record, err := newTweetRecord(&tweets[i])
		if err != nil {
			return 0, err
		}
		records = append(records, record)
		candidates = append(candidates, tweets[i].Id)
	}

	var written int
	err := store.db.Transaction(func(tx *gorm.DB) error {
		existing, err := existingTweetIds(tx, candidates)
		if err != nil {
			return err
		}
		rows := make([]*model.Tweet, 0, len(records))
		var anchorIds []int64
		var mentions []model.TweetMention
		var hashtags []model.TweetHashtag
		var urls []model.TweetUrl
		var media []model.TweetMedia
		var symbols []model.TweetSymbol
		for _, record := range records {
			if existing[record.row.Id] {
				continue
			}
			rows = append(rows, record.row)
			anchorIds = append(anchorIds, record.userIds...)
			mentions = append(mentions, record.mentions...)
			hashtags = append(hashtags, record.hashtags...)
			urls = append(urls, record.urls...)
			media = append(media, record.media...)
			symbols = append(symbols, record.symbols...)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := ensureUsers(tx, anchorIds); err != nil {
			return err
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return err
		}
		if len(mentions) > 0 {
			if err := tx.CreateInBatches(mentions, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(hashtags) > 0 {
			if err := tx.CreateInBatches(hashtags, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(urls) > 0 {
			if err := tx.CreateInBatches(urls, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(media) > 0 {
			if err := tx.CreateInBatches(media, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(symbols) > 0 {
			if err := tx.CreateInBatches(symbols, insertBatchSize).Error; err != nil {
				return err
			}
		}
		written = len(rows)
		return nil
	})
	if err != nil {
		return 0, &PersistenceError{Op: "save tweets", Err: err}
	}
	return written, nil
}

func existingTweetIds(tx *gorm.DB, ids []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool, len(ids))
	for _, chunk := range utils.ChunkInt64s(ids, idChunkSize) {
		var found []int64
		if err := tx.Model(&model.Tweet{}).Where("id IN ?", chunk).Pluck("id", &found).Error; err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}

func newTweetRecord(tweet *twitter.Tweet) (*tweetRecord, error) {
	if tweet.User == nil {
		return nil, errors.Errorf("tweet %d carries no author", tweet.Id)
	}
	postedAt, err := twitter.ParseCreatedAt(tweet.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to convert tweet %d", tweet.Id)
	}
	row := &model.Tweet{
		Id:                tweet.Id,
		UserId:            tweet.User.Id,
		Content:           tweet.Content(),
		PostedAt:          postedAt,
		Lang:              tweet.Lang,
		Source:            tweet.Source,
		Truncated:         tweet.Truncated,
		RetweetCount:      tweet.RetweetCount,
		FavoriteCount:     tweet.FavoriteCount,
		InReplyToStatusId: tweet.InReplyToStatusId,
		InReplyToUserId:   tweet.InReplyToUserId,
		QuotedStatusId:    tweet.QuotedStatusId,
	}
	if tweet.RetweetedStatus != nil {
		row.RetweetedStatusId = &tweet.RetweetedStatus.Id
	}
	if tweet.QuotedStatus != nil {
		content := tweet.QuotedStatus.Content()
		row.QuotedStatusContent = &content
		if row.QuotedStatusId == nil {
			row.QuotedStatusId = &tweet.QuotedStatus.Id
		}
	}
	raw := []byte(tweet.Raw)
	if len(raw) == 0 {
		encoded, err := json.Marshal(tweet)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to convert tweet %d", tweet.Id)
		}
		raw = encoded
	}
	row.ApiResponse = datatypes.JSON(utils.StripNulBytes(raw))

	record := &tweetRecord{row: row, userIds: []int64{tweet.User.Id}}
	if tweet.Entities == nil {
		return record, nil
	}
	for _, mention := range tweet.Entities.UserMentions {
		start, end := entitySpan(mention.Indices)
		record.mentions = append(record.mentions, model.TweetMention{
			TweetId:    tweet.Id,
			UserId:     mention.Id,
			StartIndex: start,
			EndIndex:   end,
		})
		record.userIds = append(record.userIds, mention.Id)
	}
	for _, hashtag := range tweet.Entities.Hashtags {
		start, end := entitySpan(hashtag.Indices)
		record.hashtags = append(record.hashtags, model.TweetHashtag{
			TweetId:    tweet.Id,
			Tag:        hashtag.Text,
			StartIndex: start,
			EndIndex:   end,
		})
	}
	for _, url := range tweet.Entities.Urls {
		start, end := entitySpan(url.Indices)
		record.urls = append(record.urls, model.TweetUrl{
			TweetId:     tweet.Id,
			Url:         url.Url,
			ExpandedUrl: url.ExpandedUrl,
			DisplayUrl:  url.DisplayUrl,
			StartIndex:  start,
			EndIndex:    end,
		})
	}
	for _, medium := range tweet.Entities.Media {
		start, end := entitySpan(medium.Indices)
		record.media = append(record.media, model.TweetMedia{
			TweetId:    tweet.Id,
			MediaId:    medium.Id,
			MediaUrl:   medium.MediaUrl,
			MediaType:  medium.Type,
			StartIndex: start,
			EndIndex:   end,
		})
	}
	for _, symbol := range tweet.Entities.Symbols {
		start, end := entitySpan(symbol.Indices)
		record.symbols = append(record.symbols, model.TweetSymbol{
			TweetId:    tweet.Id,
			Symbol:     symbol.Text,
			StartIndex: start,
			EndIndex:   end,
		})
	}
	return record, nil
}

// entitySpan unpacks the two element indices array; malformed payloads
// yield a zero span.
func entitySpan(indices []int) (int, int) {
	if len(indices) == 2 {
		return indices[0], indices[1]
	}
	return 0, 0
}

// MaxTweetId returns the highest stored tweet id authored by userId, 0
// when none. Timeline fetches use it as the since_id floor.
func (store *Store) MaxTweetId(userId int64) (int64, error) {
	var maxId int64
	err := store.db.Model(&model.Tweet{}).
		Where("user_id = ?", userId).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxId).Error
	if err != nil {
		return 0, err
	}
	return maxId, nil
}
