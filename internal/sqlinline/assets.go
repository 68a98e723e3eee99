package sqlinline

const QInsertAsset = `--sql 72bf74b7-c7a5-42b6-86f2-32a520e583af
insert into assets(
  id,
  media_type,
  origin,
  file_path,
  mime_type,
  size_bytes,
  width,
  height,
  duration_seconds,
  parent_asset_id,
  source_job_id,
  metadata_json,
  created_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

const QSelectAssetByID = `--sql 3ed76b95-2cd1-4d06-8083-4104daf8b7f5
select
  id, media_type, origin, file_path, mime_type, size_bytes, width, height,
  duration_seconds, parent_asset_id, source_job_id, metadata_json, created_at
from assets
where id = ?
limit 1;
`

const QListAssets = `--sql a43f8899-6e49-48a1-9cd6-a7a325371f57
select
  id, media_type, origin, file_path, mime_type, size_bytes, width, height,
  duration_seconds, parent_asset_id, source_job_id, metadata_json, created_at
from assets
where (?1 = '' or media_type = ?1)
  and (?2 = '' or origin = ?2)
order by created_at desc, id desc
limit ?3 offset ?4;
`

// QDeleteGeneratedAsset never touches uploads.
const QDeleteGeneratedAsset = `--sql 5c1f0a8e-7d3b-4e29-9a61-2f4b8c0d7e13
delete from assets
where id = ?
  and origin = 'generated';
`
